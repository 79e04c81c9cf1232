package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/ciload/internal/loadgen/engine"
	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatLatency(tt.duration); got != tt.expected {
				t.Errorf("formatLatency(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatNumber(tt.number); got != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, got, tt.expected)
			}
		})
	}
}

func TestVisibleLen(t *testing.T) {
	if got := visibleLen("\x1b[32mok\x1b[0m"); got != 2 {
		t.Errorf("visibleLen = %d, want 2", got)
	}
	if got := visibleLen("│ µs"); got != 4 {
		t.Errorf("visibleLen = %d, want 4", got)
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar(0.5, 10); got != "[█████░░░░░]" {
		t.Errorf("progressBar(0.5) = %q", got)
	}
	if got := progressBar(2, 4); got != "[████]" {
		t.Errorf("progressBar(2) = %q", got)
	}
	if got := progressBar(-1, 4); got != "[░░░░]" {
		t.Errorf("progressBar(-1) = %q", got)
	}
}

func newTestConsole(buf *bytes.Buffer, quiet, tty bool) *ConsoleOutput {
	return NewConsoleOutput(ConsoleOutputConfig{
		TestName:      "CI load",
		Profiles:      []string{"build-trigger", "webhook"},
		TotalDuration: time.Minute,
		Writer:        buf,
		Quiet:         quiet,
		ForceTTY:      tty,
	})
}

func TestConsoleOutput_PrintHeader(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, false, false).PrintHeader()

	out := buf.String()
	if !strings.Contains(out, "CI load - Running [build-trigger, webhook]") {
		t.Errorf("header missing title: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("non-TTY output must not be colored: %q", out)
	}
}

func TestConsoleOutput_QuietHeader(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, true, false).PrintHeader()
	if buf.Len() != 0 {
		t.Errorf("quiet header wrote %q", buf.String())
	}
}

func TestConsoleOutput_UpdateRequiresTTY(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	stats := &LiveStats{Progress: 0.5, ActiveUsers: 3, TargetUsers: 5, Phase: "spawning"}

	var buf bytes.Buffer
	newTestConsole(&buf, false, false).Update(stats)
	if buf.Len() != 0 {
		t.Errorf("non-TTY Update wrote %q", buf.String())
	}

	buf.Reset()
	c := newTestConsole(&buf, false, true)
	c.Update(stats)
	first := buf.String()
	if !strings.Contains(first, "Users:   3 / 5") || !strings.Contains(first, "Phase:    spawning") {
		t.Errorf("live display missing stats: %q", first)
	}
	if strings.Contains(first, "\033[2K") {
		t.Error("first update should not clear anything")
	}

	buf.Reset()
	c.Update(stats)
	if !strings.Contains(buf.String(), "\033[2K") {
		t.Error("second update should clear the previous display")
	}
}

func TestConsoleOutput_OpenEndedLive(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	c := newTestConsole(&buf, false, true)
	c.Update(&LiveStats{OpenEnded: true, Elapsed: 3 * time.Second, Phase: "steady"})

	if !strings.Contains(buf.String(), "(until stopped)") {
		t.Errorf("open-ended display = %q", buf.String())
	}
	if strings.Contains(buf.String(), "Progress:") {
		t.Error("open-ended display should not show a progress bar")
	}
}

func TestConsoleOutput_PrintNonInteractiveUpdate(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf, false, false)
	c.PrintNonInteractiveUpdate(&LiveStats{
		Progress:      0.25,
		Elapsed:       15 * time.Second,
		ActiveUsers:   10,
		TargetUsers:   10,
		TotalRequests: 1234,
		CurrentRPS:    82.3,
		Failures:      2,
		FailureRate:   0.0016,
		LatencyP95:    120 * time.Millisecond,
	})

	want := "[15.0s] Progress: 25% | Users: 10/10 | Reqs: 1234 | RPS: 82.3 | Fails: 2 (0.2%) | P95: 120ms\n"
	if buf.String() != want {
		t.Errorf("got  %q\nwant %q", buf.String(), want)
	}
}

func sampleResult(passed bool) *engine.TestResult {
	return &engine.TestResult{
		Name:     "CI load",
		Duration: 90 * time.Second,
		Scenarios: map[string]*engine.ScenarioResult{
			"builds": {Name: "builds", Profile: "build-trigger", Host: "http://ci.local", Users: 5, SpawnedVUs: 5, Iterations: 300},
			"hooks":  {Name: "hooks", Profile: "webhook", Host: "http://ci.local", Users: 20, SpawnedVUs: 20, Iterations: 9000},
		},
		Metrics: &metrics.Snapshot{
			TotalRequests:  9300,
			FailedRequests: 12,
			ErrorRate:      12.0 / 9300,
			SteadyStateRPS: 103.3,
			Latency: metrics.LatencyStats{
				Min: time.Millisecond,
				P50: 20 * time.Millisecond,
				P95: 80 * time.Millisecond,
				Max: 2 * time.Second,
			},
		},
		Requests: []metrics.RequestStats{
			{Name: "/build-pipeline", Requests: 300, Failures: 12},
			{Name: "github-pr", Requests: 9000},
		},
		Failures: []metrics.Failure{
			{Name: "/build-pipeline", Reason: "HTTP 500", Occurrences: 12},
		},
		Passed: passed,
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_failed", Expression: "rate < 0.01", Passed: passed, Value: "0.0013"},
		},
	}
}

func TestConsoleOutput_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, false, false).PrintSummary(sampleResult(true))

	out := buf.String()
	for _, want := range []string{
		"CI load - Completed ✓",
		"Duration:      1m 30s",
		"Total Reqs:    9,300",
		"Failures:      12 (0.1%)",
		"Steady RPS:    103.3",
		"builds",
		"5/5",
		"/build-pipeline",
		"github-pr",
		"HTTP 500",
		"✓ http_req_failed rate < 0.01 (actual: 0.0013)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	requests := strings.Index(out, "Requests:")
	failures := strings.Index(out, "Failures:\n")
	if requests < 0 || failures < 0 || failures < requests {
		t.Errorf("expected the requests table before the failures table:\n%s", out)
	}
}

func TestConsoleOutput_PrintSummaryFailed(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, false, false).PrintSummary(sampleResult(false))

	if !strings.Contains(buf.String(), "CI load - Failed ✗") {
		t.Errorf("summary = %q", buf.String())
	}
	if !strings.Contains(buf.String(), "✗ http_req_failed") {
		t.Errorf("failed threshold not marked: %q", buf.String())
	}
}

func TestConsoleOutput_QuietSummary(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, true, false).PrintSummary(sampleResult(true))
	if buf.String() != "PASSED\n" {
		t.Errorf("quiet summary = %q", buf.String())
	}

	buf.Reset()
	newTestConsole(&buf, true, false).PrintSummary(sampleResult(false))
	if buf.String() != "FAILED\n" {
		t.Errorf("quiet summary = %q", buf.String())
	}
}

func TestConsoleOutput_ForceColors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleOutput(ConsoleOutputConfig{TestName: "x", Writer: &buf, ForceColors: true})
	c.PrintHeader()
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("ForceColors output is not colored: %q", buf.String())
	}
}

func TestStatsFromMetrics(t *testing.T) {
	stats := StatsFromMetrics(nil, 0, 0, 4)
	if !stats.OpenEnded || stats.TargetUsers != 4 || stats.Phase != "init" {
		t.Errorf("nil snapshot stats = %+v", stats)
	}

	snap := &metrics.Snapshot{
		TotalRequests:  100,
		FailedRequests: 5,
		ErrorRate:      0.05,
		RPS:            10,
		ActiveUsers:    4,
		Elapsed:        20 * time.Second,
		CurrentPhase:   metrics.PhaseSteady,
		Latency:        metrics.LatencyStats{P95: 50 * time.Millisecond, Mean: 10 * time.Millisecond},
	}
	stats = StatsFromMetrics(snap, 0.33, time.Minute, 4)

	if stats.OpenEnded {
		t.Error("a run with a duration is not open-ended")
	}
	if stats.Remaining != 40*time.Second {
		t.Errorf("Remaining = %v, want 40s", stats.Remaining)
	}
	if stats.Failures != 5 || stats.FailureRate != 0.05 || stats.ActiveUsers != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LatencyP95 != 50*time.Millisecond || stats.LatencyAvg != 10*time.Millisecond {
		t.Errorf("latency = %v / %v", stats.LatencyP95, stats.LatencyAvg)
	}
	if stats.Phase != "steady" {
		t.Errorf("Phase = %q", stats.Phase)
	}
}
