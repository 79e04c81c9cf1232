// Package executor provides load generation strategies for the loadgen harness.
package executor

import (
	"context"
	"time"

	"github.com/wesleyorama2/ciload/internal/loadgen"
	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeUsers spawns users at a fixed rate up to a target count and keeps
	// them looping task and wait until the run ends.
	TypeUsers Type = "users"
)

// Executor defines the interface for load generation strategies.
//
// Executors decide how many users run and for how long. What each user does
// is up to its profile.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until completion.
	// Cancelling ctx ends the run.
	Run(ctx context.Context, scheduler *loadgen.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the run early and waits for users to finish.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// Users is the target number of concurrent users
	Users int `json:"users" yaml:"users"`

	// SpawnRate is how many users start per second. Zero starts all at once.
	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	// Duration of the run. Zero runs until the context is cancelled.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// GracefulStop bounds how long in-flight tasks may finish after the end
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// DefaultGracefulStop applies when Config.GracefulStop is zero.
const DefaultGracefulStop = 30 * time.Second

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs  int `json:"activeVUs"`
	TargetVUs  int `json:"targetVUs"`
	SpawnedVUs int `json:"spawnedVUs"`

	Iterations int64 `json:"iterations"`
	TaskErrors int64 `json:"taskErrors"`

	SpawnRate float64 `json:"spawnRate"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeUsers:
		if c.Users <= 0 {
			return &ValidationError{Field: "users", Message: "users must be > 0"}
		}
		if c.SpawnRate < 0 {
			return &ValidationError{Field: "spawnRate", Message: "spawnRate cannot be negative"}
		}
		if c.Duration < 0 {
			return &ValidationError{Field: "duration", Message: "duration cannot be negative"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// SpawnDuration is how long it takes to start every user.
func (c *Config) SpawnDuration() time.Duration {
	if c.SpawnRate <= 0 || c.Users <= 1 {
		return 0
	}
	return time.Duration(float64(c.Users-1) / c.SpawnRate * float64(time.Second))
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
