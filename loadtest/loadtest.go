package loadtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wesleyorama2/ciload/internal/jenkins"
	"github.com/wesleyorama2/ciload/internal/loadgen"
	"github.com/wesleyorama2/ciload/internal/loadgen/config"
	"github.com/wesleyorama2/ciload/internal/loadgen/engine"
	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
	"github.com/wesleyorama2/ciload/internal/webhook"
)

type (
	Profile     = loadgen.Profile
	Starter     = loadgen.Starter
	Stopper     = loadgen.Stopper
	VirtualUser = loadgen.VirtualUser
	Request     = loadgen.Request
	Response    = loadgen.Response
	BasicAuth   = loadgen.BasicAuth
	WaitTime    = loadgen.WaitTime

	Config           = config.TestConfig
	GlobalSettings   = config.GlobalSettings
	ScenarioConfig   = config.ScenarioConfig
	WaitConfig       = config.WaitConfig
	ThresholdsConfig = config.ThresholdsConfig
	ExecutionOptions = config.ExecutionOptions

	Result   = engine.TestResult
	Snapshot = metrics.Snapshot
)

var (
	Between  = loadgen.Between
	Constant = loadgen.Constant
	NoWait   = loadgen.NoWait

	// LoadConfig reads a YAML or JSON run configuration.
	LoadConfig = config.LoadConfig
)

// BuiltinProfiles returns the build-trigger and webhook profiles with their
// targets read from the environment.
func BuiltinProfiles() ([]Profile, error) {
	buildCfg, err := jenkins.LoadBuildTriggerConfig()
	if err != nil {
		return nil, fmt.Errorf("%s profile: %w", jenkins.ProfileName, err)
	}
	hookCfg, err := webhook.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%s profile: %w", webhook.ProfileName, err)
	}
	return []Profile{
		jenkins.NewBuildTriggerUser(buildCfg),
		webhook.NewUser(hookCfg),
	}, nil
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the engine and every user.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}

// Runner executes one run configuration.
type Runner struct {
	engine *engine.Engine
}

// NewRunner validates cfg and resolves its scenarios against profiles.
func NewRunner(cfg *Config, profiles []Profile, opts ...Option) (*Runner, error) {
	o := runnerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	registry, err := loadgen.NewRegistry(profiles...)
	if err != nil {
		return nil, err
	}
	eng, err := engine.NewEngine(cfg, registry, engine.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return &Runner{engine: eng}, nil
}

// Run blocks until every scenario has finished or ctx is cancelled.
// Cancelling ctx stops the run gracefully and still returns a result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.engine.Run(ctx)
}

// Stop ends a run started with Run.
func (r *Runner) Stop(ctx context.Context) error {
	return r.engine.Stop(ctx)
}

// Metrics returns the current statistics of a run in progress.
func (r *Runner) Metrics() *Snapshot {
	return r.engine.GetMetrics()
}

// Progress returns how far the run is, from 0 to 1.
func (r *Runner) Progress() float64 {
	return r.engine.GetProgress()
}
