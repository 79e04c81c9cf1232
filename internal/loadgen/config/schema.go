// Package config provides run configuration parsing and validation for the
// load harness.
package config

import (
	"time"
)

// TestConfig is the root configuration for a load run.
//
// Example YAML:
//
//	name: "CI under load"
//	settings:
//	  timeout: 30s
//	scenarios:
//	  builds:
//	    profile: build-trigger
//	    users: 20
//	    spawnRate: 2
//	    duration: 5m
//	  webhooks:
//	    profile: webhook
//	    users: 50
//	    spawnRate: 10
//	    duration: 5m
//	    host: http://localhost:8080
//	thresholds:
//	  http_req_failed:
//	    - "rate < 0.01"
type TestConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings apply to every scenario
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Scenarios each run one profile with their own user population
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	// Thresholds define pass/fail criteria for metrics
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options for run execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// GlobalSettings contains HTTP and execution settings shared by all scenarios.
type GlobalSettings struct {
	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host (0 means unlimited)
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS verification, for self-signed CI servers
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// FollowRedirects makes users follow 3xx responses
	FollowRedirects bool `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`

	// Seed makes user rand sources reproducible when non-zero
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ScenarioConfig defines one user population.
type ScenarioConfig struct {
	// Profile is the registered profile name (e.g. "build-trigger")
	Profile string `json:"profile" yaml:"profile"`

	// Users is the number of concurrent users
	Users int `json:"users" yaml:"users"`

	// SpawnRate is how many users start per second
	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	// Duration is how long to run (e.g. "30s", "5m"). Empty runs until
	// interrupted.
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// GracefulStop bounds how long in-flight tasks may finish
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Host overrides the profile's default target
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Wait overrides the profile's wait time
	Wait *WaitConfig `json:"wait,omitempty" yaml:"wait,omitempty"`
}

// WaitConfig is a uniform wait time between Min and Max.
type WaitConfig struct {
	Min string `json:"min" yaml:"min"`
	Max string `json:"max" yaml:"max"`
}

// ThresholdsConfig defines pass/fail criteria.
//
// Example:
//
//	thresholds:
//	  http_req_duration:
//	    - "p95 < 500ms"
//	  http_req_failed:
//	    - "rate < 0.01"
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// IsEmpty reports whether no threshold is configured.
func (t *ThresholdsConfig) IsEmpty() bool {
	return t == nil || len(t.HTTPReqDuration)+len(t.HTTPReqFailed)+len(t.HTTPReqs) == 0
}

// ExecutionOptions controls how scenarios run.
type ExecutionOptions struct {
	// Sequential runs scenarios one after another instead of concurrently
	Sequential bool `json:"sequential,omitempty" yaml:"sequential,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
