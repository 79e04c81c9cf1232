package output

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/wesleyorama2/ciload/internal/loadgen/engine"
)

// PrintSummary prints the final run summary. In quiet mode only PASSED or
// FAILED is printed.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	p := c.colors

	if c.quiet {
		if result.Passed {
			c.writeln(p.good.Sprint("PASSED"))
		} else {
			c.writeln(p.bad.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	status := p.good.Sprint("Completed ✓")
	if !result.Passed {
		status = p.bad.Sprint("Failed ✗")
	}

	c.writeln("")
	c.rule()
	c.writeln(fmt.Sprintf("%s - %s", p.title.Sprint(result.Name), status))
	c.rule()
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", p.value.Sprint(formatDuration(result.Duration))))
	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", p.value.Sprint(formatNumber(m.TotalRequests))))
		c.writeln(fmt.Sprintf("Failures:      %s", p.rate(m.ErrorRate).Sprintf("%s (%s)", formatNumber(m.FailedRequests), formatPercent(m.ErrorRate))))
		c.writeln(fmt.Sprintf("Steady RPS:    %s", p.value.Sprintf("%.1f", m.SteadyStateRPS)))
	}
	c.writeln("")

	c.printScenarios(result)

	if m := result.Metrics; m != nil {
		c.writeln(p.title.Sprint("Latency Distribution:"))
		for _, row := range []struct {
			label string
			value string
		}{
			{"Min", formatLatency(m.Latency.Min)},
			{"P50", formatLatency(m.Latency.P50)},
			{"P90", formatLatency(m.Latency.P90)},
			{"P95", formatLatency(m.Latency.P95)},
			{"P99", formatLatency(m.Latency.P99)},
			{"Max", formatLatency(m.Latency.Max)},
		} {
			c.writeln(fmt.Sprintf("  %-10s %s", row.label+":", row.value))
		}
		c.writeln("")
	}

	if len(result.Requests) > 0 {
		c.writeln(p.title.Sprint("Requests:"))
		c.table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "  NAME\tREQS\tFAILS\tAVG\tP50\tP95\tP99\tMAX")
			for _, rs := range result.Requests {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					rs.Name,
					formatNumber(rs.Requests),
					formatNumber(rs.Failures),
					formatLatency(rs.Latency.Mean),
					formatLatency(rs.Latency.P50),
					formatLatency(rs.Latency.P95),
					formatLatency(rs.Latency.P99),
					formatLatency(rs.Latency.Max))
			}
		})
		c.writeln("")
	}

	if len(result.Failures) > 0 {
		c.writeln(p.bad.Sprint("Failures:"))
		c.table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "  OCCURRENCES\tNAME\tREASON")
			for _, f := range result.Failures {
				fmt.Fprintf(w, "  %s\t%s\t%s\n", formatNumber(f.Occurrences), f.Name, oneLine(f.Reason))
			}
		})
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(p.title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := p.good.Sprint("✓")
			if !t.Passed {
				mark = p.bad.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

func (c *ConsoleOutput) printScenarios(result *engine.TestResult) {
	if len(result.Scenarios) == 0 {
		return
	}

	names := make([]string, 0, len(result.Scenarios))
	for name := range result.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	c.writeln(c.colors.title.Sprint("Scenarios:"))
	c.table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "  SCENARIO\tPROFILE\tHOST\tUSERS\tITERATIONS\tTASK ERRORS")
		for _, name := range names {
			sr := result.Scenarios[name]
			fmt.Fprintf(w, "  %s\t%s\t%s\t%d/%d\t%s\t%d\n",
				sr.Name, sr.Profile, sr.Host, sr.SpawnedVUs, sr.Users, formatNumber(sr.Iterations), sr.TaskErrors)
		}
	})
	for _, name := range names {
		if sr := result.Scenarios[name]; sr.Error != "" {
			c.writeln(c.colors.bad.Sprintf("  %s: %s", name, sr.Error))
		}
	}
	c.writeln("")
}

// table renders aligned columns. Cells must not contain color codes.
func (c *ConsoleOutput) table(fill func(w *tabwriter.Writer)) {
	w := tabwriter.NewWriter(c.writer, 0, 0, 2, ' ', 0)
	fill(w)
	_ = w.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
