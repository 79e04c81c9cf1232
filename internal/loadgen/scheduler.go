package loadgen

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
)

// Scenario binds a profile to the target it runs against.
type Scenario struct {
	// Name of the scenario, used in reports
	Name string

	Profile Profile

	// Host is the base URL every VU of this scenario targets
	Host string

	// Wait overrides the profile's wait time when non-nil
	Wait WaitTime

	// Seed makes VU rand sources reproducible when non-zero
	Seed int64

	Logger *slog.Logger
}

// VUScheduler manages the lifecycle of Virtual Users for one scenario.
//
// It owns the HTTP client shared by its VUs, hands out VU ids, and
// coordinates graceful shutdown.
type VUScheduler struct {
	scenario *Scenario
	metrics  *metrics.Engine
	logger   *slog.Logger

	httpClientConfig HTTPClientConfig
	client           *http.Client

	vus      map[int]*VirtualUser
	vusMu    sync.RWMutex
	nextVUID atomic.Int32

	taskErrors atomic.Int64

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// FollowRedirects makes the client follow 3xx responses. Off by default
	// so a 302 from a build trigger is observed as-is.
	FollowRedirects bool
}

// DefaultHTTPClientConfig returns defaults suited for load generation.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates an HTTP client with the given settings.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed CI servers
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// NewVUScheduler creates a new VU scheduler.
func NewVUScheduler(scenario *Scenario, metricsEngine *metrics.Engine, httpConfig HTTPClientConfig) *VUScheduler {
	logger := scenario.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &VUScheduler{
		scenario:         scenario,
		metrics:          metricsEngine,
		logger:           logger.With("scenario", scenario.Name),
		httpClientConfig: httpConfig,
		client:           NewHTTPClient(httpConfig),
		vus:              make(map[int]*VirtualUser),
		shutdownCh:       make(chan struct{}),
	}
}

// Scenario returns the scenario this scheduler runs.
func (s *VUScheduler) Scenario() *Scenario {
	return s.scenario
}

// SpawnVU creates and registers a new Virtual User. The caller runs it.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))

	seed := time.Now().UnixNano() + int64(id)
	if s.scenario.Seed != 0 {
		seed = s.scenario.Seed + int64(id)
	}

	vu := NewVirtualUser(id, s.scenario.Profile, s.scenario.Host, s.client, s.metrics, s.logger, seed)

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// GetActiveVUCount returns the count of non-stopped VUs.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// TaskErrors returns how many tasks returned an error.
func (s *VUScheduler) TaskErrors() int64 {
	return s.taskErrors.Load()
}

// StopAllVUs requests all VUs to stop.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// WaitForAllVUs waits for all VUs to stop with a timeout.
// Returns the number of VUs that did not stop in time.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		remaining := time.Until(deadline)
		if remaining <= 0 || !vu.WaitForStop(remaining) {
			notStopped++
		}
	}
	return notStopped
}

// RunVU runs vu until it is stopped, ctx is cancelled, or the scheduler
// shuts down: OnStart once, then task, wait, task, wait...
//
// Task errors are counted and logged; they never stop the VU.
func (s *VUScheduler) RunVU(ctx context.Context, vu *VirtualUser) {
	defer vu.MarkStopped(context.WithoutCancel(ctx))

	s.metrics.AddActiveUsers(1)
	defer s.metrics.AddActiveUsers(-1)

	if err := vu.Start(ctx); err != nil {
		s.taskErrors.Add(1)
		s.logger.Error("user failed to start", "user", vu.ID, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		default:
		}

		if state := vu.GetState(); state == VUStateStopping || state == VUStateStopped {
			return
		}

		if err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.GetState() == VUStateStopping {
				return
			}
			s.taskErrors.Add(1)
			s.logger.Debug("task failed", "user", vu.ID, "error", err)
		}

		if !vu.Wait(ctx, s.scenario.Wait) {
			return
		}
	}
}

// Shutdown stops all VUs and waits up to timeout for them to finish.
// Tasks already in flight are allowed to complete.
func (s *VUScheduler) Shutdown(timeout time.Duration) {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
	s.StopAllVUs()

	if n := s.WaitForAllVUs(timeout); n > 0 {
		s.logger.Warn("users did not stop in time", "remaining", n, "timeout", timeout)
	}

	s.client.CloseIdleConnections()
}
