package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire run configuration.
//
// Returns nil if valid, or a ValidationErrors containing every problem found.
// Profile names are checked by the engine, which owns the registry.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}

	for _, name := range c.SortedScenarioNames() {
		validateScenario(name, c.Scenarios[name], errs)
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	validateSettings(&c.Settings, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateScenario(name string, sc *ScenarioConfig, errs *ValidationErrors) {
	prefix := fmt.Sprintf("scenarios.%s", name)

	if sc == nil {
		errs.Add(prefix, "scenario is empty")
		return
	}

	if sc.Profile == "" {
		errs.Add(prefix+".profile", "profile is required")
	}

	if sc.Users <= 0 {
		errs.Add(prefix+".users", "users must be greater than 0")
	}

	if sc.SpawnRate < 0 {
		errs.Add(prefix+".spawnRate", "spawnRate cannot be negative")
	}

	if d, err := ParseDurationString(sc.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d < 0 {
		errs.Add(prefix+".duration", "duration cannot be negative")
	}

	if _, err := ParseDurationString(sc.GracefulStop); err != nil {
		errs.Add(prefix+".gracefulStop", fmt.Sprintf("invalid gracefulStop: %v", err))
	}

	if sc.Host != "" {
		validateHost(prefix+".host", sc.Host, errs)
	}

	if sc.Wait != nil {
		validateWait(prefix+".wait", sc.Wait, errs)
	}
}

func validateHost(field, host string, errs *ValidationErrors) {
	u, err := url.Parse(host)
	if err != nil {
		errs.Add(field, fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add(field, "host must start with http:// or https://")
	}
}

func validateWait(prefix string, w *WaitConfig, errs *ValidationErrors) {
	if w.Min == "" {
		errs.Add(prefix+".min", "min is required")
	}
	if w.Max == "" {
		errs.Add(prefix+".max", "max is required")
	}

	minDur, err := ParseDurationString(w.Min)
	if err != nil {
		errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", err))
		return
	}
	maxDur, err := ParseDurationString(w.Max)
	if err != nil {
		errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", err))
		return
	}

	if minDur < 0 || maxDur < 0 {
		errs.Add(prefix, "wait cannot be negative")
	}
	if minDur > maxDur {
		errs.Add(prefix, "min must be less than or equal to max")
	}
}

func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for i, threshold := range t.HTTPReqDuration {
		if err := ValidateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_duration[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqFailed {
		if err := ValidateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_failed[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqs {
		if err := ValidateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_reqs[%d]", i), err.Error())
		}
	}
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*(<=|>=|==|!=|<|>)\s*(\S.*)$`)

// ValidateThresholdExpression checks the shape of a threshold expression.
//
// Valid formats:
//   - "p95 < 500ms"
//   - "avg < 200ms"
//   - "rate < 0.01"
//   - "count > 1000"
func ValidateThresholdExpression(expr string) error {
	metric, _, _, err := ParseThresholdExpression(expr)
	if err != nil {
		return err
	}

	switch metric {
	case "p50", "p90", "p95", "p99", "min", "max", "avg", "med", "rate", "count":
		return nil
	default:
		return fmt.Errorf("unknown threshold metric %q (p50, p90, p95, p99, min, max, avg, med, rate, count)", metric)
	}
}

// ParseThresholdExpression splits an expression like "p95 < 500ms" into its
// metric, operator and value.
func ParseThresholdExpression(expr string) (metric, op, value string, err error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", "", "", fmt.Errorf("threshold expression cannot be empty")
	}

	matches := thresholdPattern.FindStringSubmatch(expr)
	if matches == nil {
		return "", "", "", fmt.Errorf("threshold must look like '<metric> <op> <value>' with op one of <, >, <=, >=, ==, !=")
	}

	return matches[1], matches[2], strings.TrimSpace(matches[3]), nil
}

func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}

// AddThreshold appends a threshold given as "<metric>:<expression>", e.g.
// "http_req_duration:p95<500ms". This is the form accepted on the command
// line.
func (t *ThresholdsConfig) AddThreshold(raw string) error {
	metric, expr, ok := strings.Cut(raw, ":")
	if !ok {
		return fmt.Errorf("threshold %q must look like <metric>:<expression>", raw)
	}
	metric = strings.TrimSpace(metric)
	expr = strings.TrimSpace(expr)

	if err := ValidateThresholdExpression(expr); err != nil {
		return fmt.Errorf("threshold %q: %w", raw, err)
	}

	switch metric {
	case "http_req_duration":
		t.HTTPReqDuration = append(t.HTTPReqDuration, expr)
	case "http_req_failed":
		t.HTTPReqFailed = append(t.HTTPReqFailed, expr)
	case "http_reqs":
		t.HTTPReqs = append(t.HTTPReqs, expr)
	default:
		return fmt.Errorf("unknown threshold metric %q (http_req_duration, http_req_failed, http_reqs)", metric)
	}
	return nil
}
