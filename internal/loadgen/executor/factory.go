package executor

import (
	"context"
	"fmt"

	"github.com/wesleyorama2/ciload/internal/loadgen/config"
)

// NewExecutor creates a new executor of the specified type.
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type) (Executor, error) {
	switch executorType {
	case TypeUsers:
		return NewUsers(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// CreateExecutorFromScenarioConfig creates and initializes an executor from a
// scenario config.
func CreateExecutorFromScenarioConfig(ctx context.Context, name string, sc *config.ScenarioConfig) (Executor, *Config, error) {
	execConfig, err := ConfigFromScenario(name, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert scenario config: %w", err)
	}

	exec, err := CreateAndInitExecutor(ctx, execConfig)
	if err != nil {
		return nil, nil, err
	}

	return exec, execConfig, nil
}

// ConfigFromScenario converts a config.ScenarioConfig to an executor Config.
func ConfigFromScenario(name string, sc *config.ScenarioConfig) (*Config, error) {
	cfg := &Config{
		Name:      name,
		Type:      TypeUsers,
		Users:     sc.Users,
		SpawnRate: sc.SpawnRate,
	}

	dur, err := config.ParseDurationString(sc.Duration)
	if err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}
	cfg.Duration = dur

	graceful, err := config.ParseDurationString(sc.GracefulStop)
	if err != nil {
		return nil, fmt.Errorf("invalid gracefulStop: %w", err)
	}
	cfg.GracefulStop = graceful

	return cfg, nil
}
