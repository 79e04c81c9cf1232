package loadtest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/ciload/loadtest"
)

// statusUser polls the Jenkins JSON API.
type statusUser struct {
	host    string
	started atomic.Int32
}

func (u *statusUser) Name() string { return "status" }

func (u *statusUser) DefaultHost() string { return u.host }

func (u *statusUser) WaitTime() loadtest.WaitTime {
	return loadtest.Between(5*time.Millisecond, 10*time.Millisecond)
}

func (u *statusUser) OnStart(ctx context.Context, vu *loadtest.VirtualUser) error {
	u.started.Add(1)
	return nil
}

func (u *statusUser) Task(ctx context.Context, vu *loadtest.VirtualUser) error {
	_, err := vu.Do(ctx, loadtest.Request{Name: "status", Method: http.MethodGet, Path: "/api/json"})
	return err
}

func newJenkinsAPI(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mode":"NORMAL"}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunner_CustomProfile(t *testing.T) {
	srv := newJenkinsAPI(t)
	user := &statusUser{host: srv.URL}

	cfg := &loadtest.Config{
		Name: "status",
		Scenarios: map[string]*loadtest.ScenarioConfig{
			"poll": {Profile: "status", Users: 3, SpawnRate: 100, Duration: "250ms"},
		},
		Thresholds: &loadtest.ThresholdsConfig{HTTPReqFailed: []string{"rate == 0"}},
	}

	runner, err := loadtest.NewRunner(cfg, []loadtest.Profile{user})
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, int32(3), user.started.Load())
	assert.Greater(t, result.Metrics.TotalRequests, int64(3))
	require.Len(t, result.Requests, 1)
	assert.Equal(t, "status", result.Requests[0].Name)
	assert.Equal(t, 1.0, runner.Progress())
}

func TestRunner_UnknownProfile(t *testing.T) {
	cfg := &loadtest.Config{Scenarios: map[string]*loadtest.ScenarioConfig{
		"x": {Profile: "webhook", Users: 1},
	}}
	_, err := loadtest.NewRunner(cfg, []loadtest.Profile{&statusUser{host: "http://ci.local"}})
	assert.Error(t, err)
}

func TestRunner_StopEndsOpenRun(t *testing.T) {
	srv := newJenkinsAPI(t)
	cfg := &loadtest.Config{Scenarios: map[string]*loadtest.ScenarioConfig{
		"poll": {Profile: "status", Users: 1, GracefulStop: "1s"},
	}}

	runner, err := loadtest.NewRunner(cfg, []loadtest.Profile{&statusUser{host: srv.URL}})
	require.NoError(t, err)

	done := make(chan *loadtest.Result, 1)
	go func() {
		result, _ := runner.Run(context.Background())
		done <- result
	}()

	require.Eventually(t, func() bool {
		return runner.Metrics().TotalRequests > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, runner.Stop(context.Background()))

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.Greater(t, result.Metrics.TotalRequests, int64(0))
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRunner_StopImmediatelyAfterRun(t *testing.T) {
	srv := newJenkinsAPI(t)

	for i := 0; i < 20; i++ {
		cfg := &loadtest.Config{Scenarios: map[string]*loadtest.ScenarioConfig{
			"poll": {Profile: "status", Users: 2, GracefulStop: "1s"},
		}}
		runner, err := loadtest.NewRunner(cfg, []loadtest.Profile{&statusUser{host: srv.URL}})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = runner.Run(context.Background())
		}()
		require.NoError(t, runner.Stop(context.Background()))

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d: Run did not return after Stop", i)
		}
	}
}

func TestBuiltinProfiles(t *testing.T) {
	t.Setenv("JENKINS_HOST", "http://ci.local")
	t.Setenv("WEBHOOK_HOST", "http://hooks.local")

	profiles, err := loadtest.BuiltinProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "build-trigger", profiles[0].Name())
	assert.Equal(t, "webhook", profiles[1].Name())

	t.Setenv("WEBHOOK_HOST", "hooks.local")
	_, err = loadtest.BuiltinProfiles()
	assert.Error(t, err)
}
