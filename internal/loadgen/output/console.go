// Package output renders load runs on the console: a header, live progress
// while users run, and a final summary with per-request and failure tables.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
)

const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	ruleWidth = 56
	boxWidth  = 55
)

// LiveStats is what the live display shows at one instant.
type LiveStats struct {
	Progress  float64 // 0.0 to 1.0
	Elapsed   time.Duration
	Remaining time.Duration

	// OpenEnded runs have no planned end.
	OpenEnded bool

	ActiveUsers int
	TargetUsers int

	CurrentRPS    float64
	TotalRequests int64
	Failures      int64
	FailureRate   float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	Phase string
}

// palette holds the colors used by the console. Every color is disabled
// together when output is not colored.
type palette struct {
	rule    *color.Color
	title   *color.Color
	dim     *color.Color
	value   *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	latency *color.Color
	phase   *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		rule:    color.New(color.FgCyan),
		title:   color.New(color.Bold),
		dim:     color.New(color.Faint),
		value:   color.New(color.FgCyan),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		latency: color.New(color.FgBlue),
		phase:   color.New(color.FgMagenta),
	}
	for _, c := range []*color.Color{p.rule, p.title, p.dim, p.value, p.good, p.warn, p.bad, p.latency, p.phase} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// rate picks a color for a failure ratio: green below 1%, yellow below 5%,
// red otherwise.
func (p *palette) rate(failureRate float64) *color.Color {
	switch {
	case failureRate > 0.05:
		return p.bad
	case failureRate > 0.01:
		return p.warn
	default:
		return p.good
	}
}

// ConsoleOutput manages console output during a run.
type ConsoleOutput struct {
	testName      string
	profiles      []string
	totalDuration time.Duration
	writer        io.Writer
	isTTY         bool
	quiet         bool
	colors        *palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName string

	// Profiles are listed in the header.
	Profiles []string

	// TotalDuration is zero for runs that last until stopped.
	TotalDuration time.Duration

	Writer      io.Writer
	Quiet       bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := config.ForceColors || (isTTY && supportsColors())

	return &ConsoleOutput{
		testName:      config.TestName,
		profiles:      config.Profiles,
		totalDuration: config.TotalDuration,
		writer:        config.Writer,
		isTTY:         isTTY,
		quiet:         config.Quiet,
		colors:        newPalette(useColors),
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	title := c.testName + " - Running"
	if len(c.profiles) > 0 {
		title += fmt.Sprintf(" [%s]", strings.Join(c.profiles, ", "))
	}

	c.rule()
	c.writeln(c.colors.title.Sprint(title))
	c.rule()
	c.writeln("")
}

// Update redraws the live display. It does nothing unless the output is a
// terminal.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	lines := c.renderLive(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintNonInteractiveUpdate prints a one-line status. Used when output is
// not a terminal, e.g. in CI logs.
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s | Users: %d/%d | Reqs: %d | RPS: %.1f | Fails: %d (%s) | P95: %s",
		formatDuration(stats.Elapsed),
		progressLabel(stats),
		stats.ActiveUsers,
		stats.TargetUsers,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Failures,
		formatPercent(stats.FailureRate),
		formatLatency(stats.LatencyP95)))
}

func progressLabel(stats *LiveStats) string {
	if stats.OpenEnded {
		return "Phase: " + stats.Phase
	}
	return fmt.Sprintf("Progress: %.0f%%", clamp01(stats.Progress)*100)
}

func (c *ConsoleOutput) renderLive(stats *LiveStats) []string {
	p := c.colors
	var lines []string

	if stats.OpenEnded {
		lines = append(lines, fmt.Sprintf("Elapsed:  %s %s",
			p.value.Sprint(formatDuration(stats.Elapsed)),
			p.dim.Sprint("(until stopped)")))
	} else {
		lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
			p.good.Sprint(progressBar(stats.Progress, 40)),
			p.title.Sprintf("%.0f%%", clamp01(stats.Progress)*100),
			p.dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))))
	}
	lines = append(lines, fmt.Sprintf("Phase:    %s", p.phase.Sprint(stats.Phase)), "")

	rateColor := p.rate(stats.FailureRate)
	lines = append(lines,
		p.dim.Sprint("┌"+strings.Repeat("━", boxWidth-2)+"┐"),
		c.boxRow(
			fmt.Sprintf("Users:   %s / %d", p.value.Sprint(stats.ActiveUsers), stats.TargetUsers),
			fmt.Sprintf("Requests:    %s", p.value.Sprint(formatNumber(stats.TotalRequests)))),
		c.boxRow(
			fmt.Sprintf("RPS:     %s", p.good.Sprintf("%.1f", stats.CurrentRPS)),
			fmt.Sprintf("Failures:    %s (%s)", rateColor.Sprint(stats.Failures), rateColor.Sprint(formatPercent(stats.FailureRate)))),
		c.boxRow(
			fmt.Sprintf("P95:     %s", p.latency.Sprint(formatLatency(stats.LatencyP95))),
			fmt.Sprintf("Avg:         %s", p.latency.Sprint(formatLatency(stats.LatencyAvg)))),
		p.dim.Sprint("└"+strings.Repeat("━", boxWidth-2)+"┘"),
	)
	return lines
}

func (c *ConsoleOutput) boxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2
	pad := func(s string) string {
		if n := colWidth - visibleLen(s); n > 0 {
			return s + strings.Repeat(" ", n)
		}
		return s
	}
	bar := c.colors.dim.Sprint("│")
	return fmt.Sprintf("%s %s%s %s %s", bar, pad(left), bar, pad(right), bar)
}

// clearLive erases the previous live display. Callers hold c.mu.
func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) rule() {
	c.writeln(c.colors.rule.Sprint(strings.Repeat("━", ruleWidth)))
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromMetrics builds LiveStats from a metrics snapshot.
// A zero totalDuration marks a run that lasts until stopped.
func StatsFromMetrics(snapshot *metrics.Snapshot, progress float64, totalDuration time.Duration, targetUsers int) *LiveStats {
	if snapshot == nil {
		return &LiveStats{
			Progress:    progress,
			OpenEnded:   totalDuration == 0,
			TargetUsers: targetUsers,
			Phase:       string(metrics.PhaseInit),
		}
	}

	var remaining time.Duration
	if totalDuration > 0 {
		remaining = totalDuration - snapshot.Elapsed
		if remaining < 0 {
			remaining = 0
		}
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       snapshot.Elapsed,
		Remaining:     remaining,
		OpenEnded:     totalDuration == 0,
		ActiveUsers:   snapshot.ActiveUsers,
		TargetUsers:   targetUsers,
		CurrentRPS:    snapshot.RPS,
		TotalRequests: snapshot.TotalRequests,
		Failures:      snapshot.FailedRequests,
		FailureRate:   snapshot.ErrorRate,
		LatencyP95:    snapshot.Latency.P95,
		LatencyAvg:    snapshot.Latency.Mean,
		Phase:         string(snapshot.CurrentPhase),
	}
}
