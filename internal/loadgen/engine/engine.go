// Package engine orchestrates a load run: one scheduler and executor per
// scenario, a shared metrics engine, and threshold evaluation at the end.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/ciload/internal/loadgen"
	"github.com/wesleyorama2/ciload/internal/loadgen/config"
	"github.com/wesleyorama2/ciload/internal/loadgen/executor"
	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
)

// Engine is the main orchestrator for a load run.
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("run.yaml")
//	eng, _ := engine.NewEngine(cfg, registry)
//	result, _ := eng.Run(ctx)
//	fmt.Printf("passed: %v\n", result.Passed)
type Engine struct {
	config   *config.TestConfig
	registry *loadgen.Registry
	logger   *slog.Logger

	// Shared across all scenarios
	metricsEngine *metrics.Engine

	httpConfig loadgen.HTTPClientConfig

	scenarios map[string]*ScenarioRunner
	order     []string
	mu        sync.RWMutex

	startTime time.Time
	running   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for run lifecycle messages and passed to
// every user.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetricsEngine replaces the metrics engine created by NewEngine.
func WithMetricsEngine(m *metrics.Engine) Option {
	return func(e *Engine) {
		e.metricsEngine = m
	}
}

// ScenarioRunner manages the execution of a single scenario.
type ScenarioRunner struct {
	Name      string
	Config    *config.ScenarioConfig
	Executor  executor.Executor
	Scheduler *loadgen.VUScheduler
	Scenario  *loadgen.Scenario
	Result    *ScenarioResult
}

// ScenarioResult contains the results of a single scenario.
type ScenarioResult struct {
	Name       string        `json:"name"`
	Profile    string        `json:"profile"`
	Host       string        `json:"host"`
	Users      int           `json:"users"`
	SpawnRate  float64       `json:"spawnRate"`
	Duration   time.Duration `json:"duration"`
	SpawnedVUs int           `json:"spawnedUsers"`
	Iterations int64         `json:"iterations"`
	TaskErrors int64         `json:"taskErrors"`
	Error      string        `json:"error,omitempty"`
}

// TestResult contains the complete run results.
type TestResult struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	Scenarios map[string]*ScenarioResult `json:"scenarios"`

	// Aggregated across all scenarios
	Metrics    *metrics.Snapshot      `json:"metrics"`
	Requests   []metrics.RequestStats `json:"requests"`
	Failures   []metrics.Failure      `json:"failures"`
	Phases     []metrics.PhaseChange  `json:"phases,omitempty"`
	TimeSeries []*metrics.TimeBucket  `json:"timeSeries,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// NewEngine creates a new engine for cfg, resolving profiles from registry.
//
// Returns an error if the configuration is invalid or names an unknown
// profile.
func NewEngine(cfg *config.TestConfig, registry *loadgen.Registry, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.ApplyDefaults(cfg)

	e := &Engine{
		config:    cfg,
		registry:  registry,
		logger:    slog.Default(),
		scenarios: make(map[string]*ScenarioRunner),
		httpConfig: loadgen.HTTPClientConfig{
			Timeout:             cfg.Settings.Timeout.GetDuration(30 * time.Second),
			MaxIdleConns:        1000,
			MaxIdleConnsPerHost: cfg.Settings.MaxIdleConnsPerHost,
			MaxConnsPerHost:     cfg.Settings.MaxConnectionsPerHost,
			IdleConnTimeout:     90 * time.Second,
			InsecureSkipVerify:  cfg.Settings.InsecureSkipVerify,
			FollowRedirects:     cfg.Settings.FollowRedirects,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metricsEngine == nil {
		e.metricsEngine = metrics.NewEngine()
	}

	if err := e.initializeScenarios(); err != nil {
		e.metricsEngine.Stop()
		return nil, err
	}

	return e, nil
}

// initializeScenarios creates executors and schedulers for all scenarios.
func (e *Engine) initializeScenarios() error {
	for i, name := range e.config.SortedScenarioNames() {
		sc := e.config.Scenarios[name]

		profile, err := e.registry.Lookup(sc.Profile)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}

		scenario, err := e.createScenario(i, name, sc, profile)
		if err != nil {
			return err
		}

		exec, _, err := executor.CreateExecutorFromScenarioConfig(context.Background(), name, sc)
		if err != nil {
			return fmt.Errorf("failed to create executor for scenario %s: %w", name, err)
		}

		e.scenarios[name] = &ScenarioRunner{
			Name:      name,
			Config:    sc,
			Executor:  exec,
			Scheduler: loadgen.NewVUScheduler(scenario, e.metricsEngine, e.httpConfig),
			Scenario:  scenario,
		}
		e.order = append(e.order, name)
	}

	return nil
}

// createScenario binds a profile to its host, wait override and seed.
func (e *Engine) createScenario(index int, name string, sc *config.ScenarioConfig, profile loadgen.Profile) (*loadgen.Scenario, error) {
	host := sc.Host
	if host == "" {
		host = loadgen.DefaultHost(profile)
	}
	if host == "" {
		return nil, fmt.Errorf("scenario %s: no host configured and profile %s has no default", name, profile.Name())
	}

	scenario := &loadgen.Scenario{
		Name:    name,
		Profile: profile,
		Host:    host,
		Logger:  e.logger,
	}

	if sc.Wait != nil {
		minWait, maxWait, err := sc.Wait.WaitBounds()
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		scenario.Wait = loadgen.Between(minWait, maxWait)
	}

	// Scenarios get disjoint seed ranges so their users never share a sequence.
	if e.config.Settings.Seed != 0 {
		scenario.Seed = e.config.Settings.Seed + int64(index)*1_000_000
	}

	return scenario, nil
}

// Run executes all scenarios and returns the run results.
//
// By default, all scenarios run concurrently. If Options.Sequential is true,
// scenarios run one at a time. Cancelling ctx ends every scenario; this is
// how runs without a duration finish, and is not an error.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	defer e.metricsEngine.Stop()

	e.metricsEngine.SetPhase(metrics.PhaseInit)

	var scenarioResults map[string]*ScenarioResult
	var runErr error

	if e.config.Options != nil && e.config.Options.Sequential {
		scenarioResults, runErr = e.runScenariosSequentially(ctx)
	} else {
		scenarioResults, runErr = e.runScenariosConcurrently(ctx)
	}

	e.metricsEngine.SetPhase(metrics.PhaseDone)

	snapshot := e.metricsEngine.GetSnapshot()
	thresholdResults := EvaluateThresholds(e.config.Thresholds, snapshot)
	passed := runErr == nil
	for _, tr := range thresholdResults {
		if !tr.Passed {
			passed = false
			break
		}
	}

	result := &TestResult{
		Name:        e.config.Name,
		Description: e.config.Description,
		StartTime:   e.startTime,
		EndTime:     time.Now(),
		Duration:    time.Since(e.startTime),
		Scenarios:   scenarioResults,
		Metrics:     snapshot,
		Requests:    e.metricsEngine.GetRequestStats(),
		Failures:    e.metricsEngine.GetFailures(),
		Phases:      e.metricsEngine.GetPhaseHistory(),
		TimeSeries:  e.metricsEngine.GetTimeSeries(),
		Passed:      passed,
		Thresholds:  thresholdResults,
	}

	e.logger.Info("run finished",
		"requests", snapshot.TotalRequests,
		"failures", snapshot.FailedRequests,
		"duration", result.Duration.Round(time.Millisecond),
		"passed", passed)

	return result, runErr
}

// runScenariosConcurrently runs all scenarios in parallel.
func (e *Engine) runScenariosConcurrently(ctx context.Context) (map[string]*ScenarioResult, error) {
	results := make(map[string]*ScenarioResult)
	var resultsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range e.order {
		runner := e.scenarios[name]
		g.Go(func() error {
			result, err := e.runScenario(gctx, runner)

			resultsMu.Lock()
			results[runner.Name] = result
			resultsMu.Unlock()

			if err != nil {
				return fmt.Errorf("scenario %s failed: %w", runner.Name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// runScenariosSequentially runs all scenarios one at a time, in name order.
func (e *Engine) runScenariosSequentially(ctx context.Context) (map[string]*ScenarioResult, error) {
	results := make(map[string]*ScenarioResult)

	for _, name := range e.order {
		if ctx.Err() != nil {
			break
		}

		result, err := e.runScenario(ctx, e.scenarios[name])
		results[name] = result

		if err != nil {
			return results, fmt.Errorf("scenario %s failed: %w", name, err)
		}
	}

	return results, nil
}

// runScenario runs a single scenario.
func (e *Engine) runScenario(ctx context.Context, runner *ScenarioRunner) (*ScenarioResult, error) {
	logger := e.logger.With("scenario", runner.Name)
	logger.Info("starting scenario",
		"profile", runner.Config.Profile,
		"host", runner.Scenario.Host,
		"users", runner.Config.Users,
		"spawn_rate", runner.Config.SpawnRate,
		"duration", runner.Config.Duration)

	startTime := time.Now()
	err := runner.Executor.Run(ctx, runner.Scheduler, e.metricsEngine)
	runner.Scheduler.Shutdown(5 * time.Second)

	stats := runner.Executor.GetStats()
	result := &ScenarioResult{
		Name:       runner.Name,
		Profile:    runner.Config.Profile,
		Host:       runner.Scenario.Host,
		Users:      runner.Config.Users,
		SpawnRate:  runner.Config.SpawnRate,
		Duration:   time.Since(startTime),
		SpawnedVUs: stats.SpawnedVUs,
		Iterations: stats.Iterations,
		TaskErrors: stats.TaskErrors,
	}
	if err != nil {
		result.Error = err.Error()
		logger.Error("scenario failed", "error", err)
	} else {
		logger.Info("scenario finished", "iterations", stats.Iterations, "task_errors", stats.TaskErrors)
	}

	e.mu.Lock()
	runner.Result = result
	e.mu.Unlock()

	return result, err
}

// GetConfig returns the run configuration.
func (e *Engine) GetConfig() *config.TestConfig {
	return e.config
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	return e.metricsEngine.GetSnapshot()
}

// MetricsEngine returns the shared metrics engine.
func (e *Engine) MetricsEngine() *metrics.Engine {
	return e.metricsEngine
}

// ScenarioNames returns scenario names in run order.
func (e *Engine) ScenarioNames() []string {
	return append([]string(nil), e.order...)
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop gracefully stops all running scenarios. Scenarios that have not
// started yet, including every scenario of a Run that is only about to
// begin, return as soon as they start.
func (e *Engine) Stop(ctx context.Context) error {
	var lastErr error
	for _, name := range e.order {
		if err := e.scenarios[name].Executor.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// GetProgress returns the overall run progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	if len(e.order) == 0 {
		return 0.0
	}

	var total float64
	for _, name := range e.order {
		total += e.scenarios[name].Executor.GetProgress()
	}
	return total / float64(len(e.order))
}

// GetScenarioStats returns current stats for all scenarios.
func (e *Engine) GetScenarioStats() map[string]*executor.Stats {
	stats := make(map[string]*executor.Stats, len(e.order))
	for _, name := range e.order {
		stats[name] = e.scenarios[name].Executor.GetStats()
	}
	return stats
}

// TotalDuration is the planned run length, or 0 if any scenario runs until
// interrupted.
func (e *Engine) TotalDuration() time.Duration {
	var total time.Duration
	sequential := e.config.Options != nil && e.config.Options.Sequential

	for _, name := range e.order {
		d, _ := config.ParseDurationString(e.scenarios[name].Config.Duration)
		if d <= 0 {
			return 0
		}
		if sequential {
			total += d
		} else if d > total {
			total = d
		}
	}
	return total
}
