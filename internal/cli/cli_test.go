package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/ciload/internal/jenkins"
	"github.com/wesleyorama2/ciload/internal/loadgen"
	loadconfig "github.com/wesleyorama2/ciload/internal/loadgen/config"
	"github.com/wesleyorama2/ciload/internal/webhook"
)

type ciStub struct {
	*httptest.Server
	builds atomic.Int64
	hooks  atomic.Int64
}

// newCIStub answers build triggers with 201 and webhook deliveries with 200.
func newCIStub(t *testing.T) *ciStub {
	t.Helper()
	s := &ciStub{}

	r := chi.NewRouter()
	r.Post("/job/{job}/build", func(w http.ResponseWriter, r *http.Request) {
		s.builds.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	r.Post("/github-webhook/", func(w http.ResponseWriter, r *http.Request) {
		s.hooks.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func newTestRegistry(t *testing.T, host string) *loadgen.Registry {
	t.Helper()
	r, err := loadgen.NewRegistry(
		jenkins.NewBuildTriggerUser(jenkins.BuildTriggerConfig{APIToken: "abc", Host: host, JobPath: "/job/x/build"}),
		webhook.NewUser(webhook.Config{Host: host}),
	)
	require.NoError(t, err)
	return r
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func stringPtr(v string) *string { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildTestConfig_QuickMode(t *testing.T) {
	registry := newTestRegistry(t, "http://ci.local")

	cfg, err := buildTestConfig(runOptions{
		Profiles:   []string{"build-trigger", "webhook"},
		Users:      intPtr(20),
		SpawnRate:  floatPtr(2),
		RunTime:    stringPtr("5m"),
		Thresholds: []string{"http_req_failed:rate<0.01"},
	}, registry)
	require.NoError(t, err)

	require.Len(t, cfg.Scenarios, 2)
	for _, name := range []string{"build-trigger", "webhook"} {
		sc := cfg.Scenarios[name]
		require.NotNil(t, sc, name)
		assert.Equal(t, name, sc.Profile)
		assert.Equal(t, 20, sc.Users)
		assert.Equal(t, 2.0, sc.SpawnRate)
		assert.Equal(t, "5m", sc.Duration)
		assert.Empty(t, sc.Host, "host comes from the profile")
	}
	assert.Equal(t, []string{"rate<0.01"}, cfg.Thresholds.HTTPReqFailed)
}

func TestBuildTestConfig_QuickModeDefaults(t *testing.T) {
	cfg, err := buildTestConfig(runOptions{Profiles: []string{"webhook"}}, newTestRegistry(t, "http://ci.local"))
	require.NoError(t, err)

	sc := cfg.Scenarios["webhook"]
	assert.Equal(t, 1, sc.Users)
	assert.Equal(t, 1.0, sc.SpawnRate)
	assert.Empty(t, sc.Duration, "runs until interrupted")
	assert.Nil(t, cfg.Thresholds)
}

func TestBuildTestConfig_Errors(t *testing.T) {
	registry := newTestRegistry(t, "http://ci.local")

	tests := []struct {
		name    string
		opts    runOptions
		wantErr string
	}{
		{"no profile", runOptions{}, "build-trigger"},
		{"unknown profile", runOptions{Profiles: []string{"gitlab"}}, `unknown profile "gitlab"`},
		{"bad threshold", runOptions{Profiles: []string{"webhook"}, Thresholds: []string{"p95<1s"}}, "threshold"},
		{"missing config", runOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")}, "error loading config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTestConfig(tt.opts, registry)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

const sampleConfig = `
name: nightly
scenarios:
  builds:
    profile: build-trigger
    users: 5
    spawnRate: 1
    duration: 10m
  hooks:
    profile: webhook
    users: 50
    spawnRate: 10
    duration: 10m
thresholds:
  http_req_duration:
    - "p95 < 2s"
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "load.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	return path
}

func TestBuildTestConfig_ConfigFile(t *testing.T) {
	cfg, err := buildTestConfig(runOptions{
		ConfigFile: writeSampleConfig(t),
		Host:       stringPtr("http://staging.local"),
		Thresholds: []string{"http_reqs:count>10"},
	}, newTestRegistry(t, "http://ci.local"))
	require.NoError(t, err)

	assert.Equal(t, "nightly", cfg.Name)
	require.Len(t, cfg.Scenarios, 2)
	assert.Equal(t, 5, cfg.Scenarios["builds"].Users, "users not overridden")
	assert.Equal(t, "http://staging.local", cfg.Scenarios["builds"].Host)
	assert.Equal(t, "http://staging.local", cfg.Scenarios["hooks"].Host)
	assert.Equal(t, []string{"p95 < 2s"}, cfg.Thresholds.HTTPReqDuration)
	assert.Equal(t, []string{"count>10"}, cfg.Thresholds.HTTPReqs)
}

func TestBuildTestConfig_ConfigFileNarrowedToProfile(t *testing.T) {
	path := writeSampleConfig(t)
	registry := newTestRegistry(t, "http://ci.local")

	cfg, err := buildTestConfig(runOptions{ConfigFile: path, Profiles: []string{"webhook"}, Users: intPtr(3)}, registry)
	require.NoError(t, err)
	require.Len(t, cfg.Scenarios, 1)
	assert.Equal(t, 3, cfg.Scenarios["hooks"].Users)

	_, err = buildTestConfig(runOptions{ConfigFile: path, Profiles: []string{"gitlab"}}, registry)
	assert.Error(t, err)
}

func TestExecuteRun_WritesJSONResult(t *testing.T) {
	stub := newCIStub(t)
	registry := newTestRegistry(t, stub.URL)
	outPath := filepath.Join(t.TempDir(), "result.json")

	cfg := &loadconfig.TestConfig{
		Name: "smoke",
		Scenarios: map[string]*loadconfig.ScenarioConfig{
			"builds": {Profile: "build-trigger", Users: 2, SpawnRate: 100, Duration: "300ms"},
			"hooks":  {Profile: "webhook", Users: 3, SpawnRate: 100, Duration: "300ms"},
		},
		Thresholds: &loadconfig.ThresholdsConfig{HTTPReqFailed: []string{"rate < 0.01"}},
	}

	var stdout, console bytes.Buffer
	err := executeRun(context.Background(), cfg, registry, runOptions{Output: outPath}, &stdout, &console, discardLogger())
	require.NoError(t, err)

	assert.Greater(t, stub.builds.Load(), int64(0))
	assert.Greater(t, stub.hooks.Load(), int64(0))
	assert.Contains(t, console.String(), "smoke - Running [build-trigger, webhook]")
	assert.Contains(t, console.String(), "smoke - Completed ✓")
	assert.Contains(t, stdout.String(), "Results written to: "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "smoke", result["name"])
	assert.Equal(t, true, result["passed"])
}

func TestExecuteRun_ThresholdFailure(t *testing.T) {
	stub := newCIStub(t)

	cfg := &loadconfig.TestConfig{
		Scenarios: map[string]*loadconfig.ScenarioConfig{
			"hooks": {Profile: "webhook", Users: 1, SpawnRate: 10, Duration: "200ms"},
		},
		Thresholds: &loadconfig.ThresholdsConfig{HTTPReqs: []string{"count > 1000000"}},
	}

	var stdout, console bytes.Buffer
	err := executeRun(context.Background(), cfg, newTestRegistry(t, stub.URL), runOptions{Quiet: true}, &stdout, &console, discardLogger())
	assert.True(t, errors.Is(err, ErrThresholdsFailed), "err = %v", err)
	assert.Equal(t, "FAILED\n", console.String())
}

func TestExecuteRun_InvalidConfig(t *testing.T) {
	cfg := &loadconfig.TestConfig{Scenarios: map[string]*loadconfig.ScenarioConfig{
		"x": {Profile: "webhook", Users: 0},
	}}
	err := executeRun(context.Background(), cfg, newTestRegistry(t, "http://ci.local"), runOptions{}, io.Discard, io.Discard, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error creating engine")
}

func TestRunCommand_JSONToStdout(t *testing.T) {
	stub := newCIStub(t)
	t.Setenv("JENKINS_HOST", stub.URL)
	t.Setenv("JENKINS_JOB_PATH", "/job/x/build")
	t.Setenv("WEBHOOK_HOST", stub.URL)

	var stdout, stderr bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(&stderr)
	RootCmd.SetArgs([]string{"run", "webhook", "-u", "2", "-r", "50", "-t", "300ms", "--json", "-q", "--log-level", "error"})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})

	require.NoError(t, RootCmd.ExecuteContext(context.Background()))

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result), stdout.String())
	assert.Equal(t, true, result["passed"])
	assert.Contains(t, stderr.String(), "PASSED")
	assert.Greater(t, stub.hooks.Load(), int64(0))
	assert.Zero(t, stub.builds.Load())
}

func TestRunCommand_BuildWarningOnStdout(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/job/{job}/build", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	t.Setenv("JENKINS_HOST", srv.URL)
	t.Setenv("JENKINS_JOB_PATH", "/job/x/build")
	t.Setenv("CILOAD_LOG_LEVEL", "")

	var stdout, stderr bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(&stderr)
	RootCmd.SetArgs([]string{"run", "build-trigger", "-u", "1", "-r", "50", "-t", "300ms", "-q", "--json=false", "-o", "", "--log-level", ""})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})

	require.NoError(t, RootCmd.ExecuteContext(context.Background()))

	out := stdout.String()
	assert.Contains(t, out, `level=WARN msg="failed to trigger build"`)
	assert.Contains(t, out, "status=500")
	assert.NotContains(t, stderr.String(), "failed to trigger build")
}

func TestConsoleWriter(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Same(t, &stdout, consoleWriter(runOptions{}, &stdout, &stderr))
	assert.Same(t, &stdout, consoleWriter(runOptions{JSON: true, Output: "result.json"}, &stdout, &stderr))
	assert.Same(t, &stderr, consoleWriter(runOptions{JSON: true}, &stdout, &stderr))
}

func TestNewLogger_Levels(t *testing.T) {
	t.Setenv("CILOAD_LOG_LEVEL", "")

	var buf bytes.Buffer
	log, err := newLogger("", &buf)
	require.NoError(t, err)
	log.Warn("failed to trigger build", "status", 404)
	assert.Contains(t, buf.String(), "failed to trigger build", "default level keeps warnings")

	buf.Reset()
	t.Setenv("CILOAD_LOG_LEVEL", "error")
	log, err = newLogger("", &buf)
	require.NoError(t, err)
	log.Warn("failed to trigger build", "status", 404)
	assert.Empty(t, buf.String())

	log, err = newLogger("warn", &buf)
	require.NoError(t, err)
	log.Warn("failed to trigger build", "status", 404)
	assert.Contains(t, buf.String(), "status=404", "flag wins over CILOAD_LOG_LEVEL")
}

func TestListProfiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listProfiles(&buf, newTestRegistry(t, "http://ci.local")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"PROFILE", "HOST", "WAIT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"build-trigger", "http://ci.local", "1s-2s"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"webhook", "http://ci.local", "50ms-200ms"}, strings.Fields(lines[2]))
}

func TestBuiltinRegistry(t *testing.T) {
	t.Setenv("JENKINS_HOST", "http://ci.local")
	t.Setenv("WEBHOOK_HOST", "http://hooks.local")

	registry, err := builtinRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"build-trigger", "webhook"}, registry.Names())

	p, _ := registry.Get("webhook")
	assert.Equal(t, "http://hooks.local", loadgen.DefaultHost(p))

	t.Setenv("JENKINS_HOST", "ci.local")
	_, err = builtinRegistry()
	assert.Error(t, err)
}

func TestPrintPayloads(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, printPayloads(&a, payloadOptions{Count: 3, Seed: 42, Validate: true}))
	require.NoError(t, printPayloads(&b, payloadOptions{Count: 3, Seed: 42}))
	assert.Equal(t, a.String(), b.String(), "same seed, same payloads")

	lines := strings.Split(strings.TrimSpace(a.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.NoError(t, webhook.Validate([]byte(line)))
	}
}

func TestPrintPayloads_Field(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPayloads(&buf, payloadOptions{Count: 20, Seed: 1, Field: "repository.full_name"}))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.True(t, strings.HasPrefix(line, "perf/repo-"), line)
	}

	assert.Error(t, printPayloads(io.Discard, payloadOptions{Count: 1, Field: "sender.login"}))
	assert.Error(t, printPayloads(io.Discard, payloadOptions{Count: 0}))
}
