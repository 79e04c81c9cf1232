package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/ciload/internal/config"
	"github.com/wesleyorama2/ciload/internal/loadgen"
	loadconfig "github.com/wesleyorama2/ciload/internal/loadgen/config"
	"github.com/wesleyorama2/ciload/internal/loadgen/engine"
	"github.com/wesleyorama2/ciload/internal/loadgen/output"
	"github.com/wesleyorama2/ciload/internal/logger"
)

// ErrThresholdsFailed is returned by run when the run completed but at least
// one threshold did not hold.
var ErrThresholdsFailed = errors.New("thresholds failed")

var runCmd = &cobra.Command{
	Use:   "run [profile...]",
	Short: "Run simulated users against a CI server",
	Long: `Spawn simulated users for one or more profiles and run them until the
run time elapses or the run is interrupted (Ctrl-C).

Quick mode (one scenario per profile):
  ciload run build-trigger -u 20 -r 2 -t 5m
  ciload run webhook -u 100 -r 10 -t 10m --threshold "http_req_failed:rate<0.01"

Config file mode:
  ciload run --config load.yaml
  ciload run --config load.yaml webhook      # only the webhook scenarios

Without --run-time users run until interrupted.`,
	RunE: runLoadTest,
}

// runOptions holds the run flags. Nil overrides were not given.
type runOptions struct {
	ConfigFile string
	Profiles   []string

	Users     *int
	SpawnRate *float64
	RunTime   *string
	Host      *string

	Thresholds []string

	JSON     bool
	Output   string
	Quiet    bool
	LogLevel string
}

func runOptionsFromFlags(cmd *cobra.Command, args []string) runOptions {
	flags := cmd.Flags()
	opts := runOptions{Profiles: args}

	opts.ConfigFile, _ = flags.GetString("config")
	opts.Thresholds, _ = flags.GetStringArray("threshold")
	opts.JSON, _ = flags.GetBool("json")
	opts.Output, _ = flags.GetString("output")
	opts.Quiet, _ = flags.GetBool("quiet")
	opts.LogLevel, _ = flags.GetString("log-level")

	if flags.Changed("users") {
		v, _ := flags.GetInt("users")
		opts.Users = &v
	}
	if flags.Changed("spawn-rate") {
		v, _ := flags.GetFloat64("spawn-rate")
		opts.SpawnRate = &v
	}
	if flags.Changed("run-time") {
		v, _ := flags.GetString("run-time")
		opts.RunTime = &v
	}
	if flags.Changed("host") {
		v, _ := flags.GetString("host")
		opts.Host = &v
	}
	return opts
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	opts := runOptionsFromFlags(cmd, args)

	registry, err := builtinRegistry()
	if err != nil {
		return err
	}

	testConfig, err := buildTestConfig(opts, registry)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	console := consoleWriter(opts, stdout, cmd.ErrOrStderr())

	log, err := newLogger(opts.LogLevel, console)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return executeRun(ctx, testConfig, registry, opts, stdout, console, log)
}

// buildTestConfig turns the flags into a run configuration: either the
// config file, narrowed to the given profiles, or one scenario per profile.
// Flag overrides apply to every scenario.
func buildTestConfig(opts runOptions, registry *loadgen.Registry) (*loadconfig.TestConfig, error) {
	var cfg *loadconfig.TestConfig

	if opts.ConfigFile != "" {
		loaded, err := loadconfig.LoadConfig(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		cfg = loaded
		if len(opts.Profiles) > 0 {
			if err := keepProfiles(cfg, opts.Profiles); err != nil {
				return nil, err
			}
		}
	} else {
		if len(opts.Profiles) == 0 {
			return nil, fmt.Errorf("no profile given (available: %v); pass a profile name or --config", registry.Names())
		}
		cfg = &loadconfig.TestConfig{Scenarios: map[string]*loadconfig.ScenarioConfig{}}
		for _, name := range opts.Profiles {
			if _, err := registry.Lookup(name); err != nil {
				return nil, err
			}
			cfg.Scenarios[name] = &loadconfig.ScenarioConfig{Profile: name, Users: 1, SpawnRate: 1}
		}
	}

	for _, sc := range cfg.Scenarios {
		if sc == nil {
			continue
		}
		if opts.Users != nil {
			sc.Users = *opts.Users
		}
		if opts.SpawnRate != nil {
			sc.SpawnRate = *opts.SpawnRate
		}
		if opts.RunTime != nil {
			sc.Duration = *opts.RunTime
		}
		if opts.Host != nil {
			sc.Host = *opts.Host
		}
	}

	if len(opts.Thresholds) > 0 {
		if cfg.Thresholds == nil {
			cfg.Thresholds = &loadconfig.ThresholdsConfig{}
		}
		for _, t := range opts.Thresholds {
			if err := cfg.Thresholds.AddThreshold(t); err != nil {
				return nil, err
			}
		}
	}

	return cfg, nil
}

func keepProfiles(cfg *loadconfig.TestConfig, profiles []string) error {
	wanted := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		wanted[p] = true
	}
	for name, sc := range cfg.Scenarios {
		if sc == nil || !wanted[sc.Profile] {
			delete(cfg.Scenarios, name)
		}
	}
	if len(cfg.Scenarios) == 0 {
		return fmt.Errorf("no scenario in config uses profile(s) %v", profiles)
	}
	return nil
}

// consoleWriter picks where progress and log records go. They share stdout
// unless stdout carries the JSON document.
func consoleWriter(opts runOptions, stdout, stderr io.Writer) io.Writer {
	if opts.JSON && opts.Output == "" {
		return stderr
	}
	return stdout
}

// newLogger builds the run logger. The flag wins over CILOAD_LOG_LEVEL.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	if level == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		level = cfg.Logging.Level
	}
	return logger.NewWithWriter(config.Logging{Level: level}, w), nil
}

// executeRun runs cfg to completion, drawing progress on console, then
// prints the summary and writes the JSON result if asked to.
func executeRun(ctx context.Context, cfg *loadconfig.TestConfig, registry *loadgen.Registry, opts runOptions, stdout, console io.Writer, log *slog.Logger) error {
	eng, err := engine.NewEngine(cfg, registry, engine.WithLogger(log))
	if err != nil {
		return fmt.Errorf("error creating engine: %w", err)
	}

	totalDuration := eng.TotalDuration()
	consoleOutput := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:      cfg.Name,
		Profiles:      scenarioProfiles(cfg),
		TotalDuration: totalDuration,
		Writer:        console,
		Quiet:         opts.Quiet,
	})
	consoleOutput.PrintHeader()

	result, runErr := runWithProgress(ctx, eng, consoleOutput, totalDuration, targetUsers(cfg))

	if result != nil {
		consoleOutput.PrintSummary(result)
		if opts.JSON || opts.Output != "" {
			if err := writeJSONResult(result, opts.Output, stdout); err != nil {
				return err
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("error running test: %w", runErr)
	}
	if result != nil && !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// runWithProgress runs eng and refreshes the console until it returns.
// Terminals redraw every second; plain output prints a line every 5s.
func runWithProgress(ctx context.Context, eng *engine.Engine, console *output.ConsoleOutput, totalDuration time.Duration, target int) (*engine.TestResult, error) {
	var (
		result *engine.TestResult
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = eng.Run(ctx)
	}()

	interval := time.Second
	if !console.IsTTY() {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return result, runErr
		case <-ticker.C:
			if !eng.IsRunning() {
				continue
			}
			stats := output.StatsFromMetrics(eng.GetMetrics(), eng.GetProgress(), totalDuration, target)
			if console.IsTTY() {
				console.Update(stats)
			} else {
				console.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

func writeJSONResult(result *engine.TestResult, path string, stdout io.Writer) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling result: %w", err)
	}

	if path == "" {
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing result to file: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "Results written to: %s\n", path)
	return nil
}

func scenarioProfiles(cfg *loadconfig.TestConfig) []string {
	seen := map[string]bool{}
	var profiles []string
	for _, sc := range cfg.Scenarios {
		if sc != nil && !seen[sc.Profile] {
			seen[sc.Profile] = true
			profiles = append(profiles, sc.Profile)
		}
	}
	sort.Strings(profiles)
	return profiles
}

func targetUsers(cfg *loadconfig.TestConfig) int {
	total := 0
	for _, sc := range cfg.Scenarios {
		if sc != nil {
			total += sc.Users
		}
	}
	return total
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Run configuration file (YAML or JSON)")
	runCmd.Flags().IntP("users", "u", 1, "Number of concurrent users per scenario")
	runCmd.Flags().Float64P("spawn-rate", "r", 1, "Users spawned per second")
	runCmd.Flags().StringP("run-time", "t", "", "Run time, e.g. 30s, 5m (default: until interrupted)")
	runCmd.Flags().String("host", "", "Target host, overriding the profile's environment default")
	runCmd.Flags().StringArray("threshold", nil, "Pass/fail criterion, e.g. \"http_req_duration:p95<500ms\" (repeatable)")
	runCmd.Flags().Bool("json", false, "Output results as JSON (to stdout unless --output is set; logs then go to stderr)")
	runCmd.Flags().StringP("output", "o", "", "Write the JSON result to this file")
	runCmd.Flags().BoolP("quiet", "q", false, "Disable live progress output, show only PASSED/FAILED")
}
