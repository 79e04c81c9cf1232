package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is waiting between tasks.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing a task.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated user repeatedly running its profile's task.
//
// Each VU owns its rand source and iteration counter. The HTTP client and
// metrics engine are shared with every other VU of the scheduler.
type VirtualUser struct {
	ID int

	// Host is the base URL request paths are appended to.
	Host string

	HTTPClient *http.Client
	Metrics    *metrics.Engine
	Logger     *slog.Logger

	// Rand is private to this VU and must not be shared across goroutines.
	Rand *rand.Rand

	profile Profile

	state     atomic.Int32
	iteration atomic.Int64
	started   bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewVirtualUser creates a new Virtual User for profile.
func NewVirtualUser(id int, profile Profile, host string, client *http.Client, metricsEngine *metrics.Engine, logger *slog.Logger, seed int64) *VirtualUser {
	if logger == nil {
		logger = slog.Default()
	}
	return &VirtualUser{
		ID:         id,
		Host:       host,
		HTTPClient: client,
		Metrics:    metricsEngine,
		Logger:     logger.With("user", id),
		Rand:       rand.New(rand.NewSource(seed)),
		profile:    profile,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Profile returns the profile this VU runs.
func (vu *VirtualUser) Profile() Profile {
	return vu.profile
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns how many tasks this VU has started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Start runs the profile's OnStart hook once. Later calls are no-ops.
func (vu *VirtualUser) Start(ctx context.Context) error {
	if vu.started {
		return nil
	}
	vu.started = true

	if s, ok := vu.profile.(Starter); ok {
		if err := s.OnStart(ctx, vu); err != nil {
			return fmt.Errorf("user %d on start: %w", vu.ID, err)
		}
	}
	return nil
}

// RunIteration executes the profile's task once.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	state := vu.GetState()
	if state == VUStateStopping || state == VUStateStopped {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	vu.iteration.Add(1)

	err := vu.profile.Task(ctx, vu)

	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	return err
}

// Wait pauses for the profile's wait time, or for wait if non-nil.
// It returns false if the VU was stopped or ctx ended while waiting.
func (vu *VirtualUser) Wait(ctx context.Context, wait WaitTime) bool {
	if wait == nil {
		wait = vu.profile.WaitTime()
	}
	if wait == nil {
		return ctx.Err() == nil
	}

	d := wait(vu.Rand)
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// RequestStop signals the VU to stop after the current task. A pending
// Wait returns immediately.
func (vu *VirtualUser) RequestStop() {
	for {
		state := vu.state.Load()
		if VUState(state) == VUStateStopping || VUState(state) == VUStateStopped {
			break
		}
		if vu.state.CompareAndSwap(state, int32(VUStateStopping)) {
			break
		}
	}
	vu.stopOnce.Do(func() { close(vu.stopCh) })
}

// WaitForStop waits for the VU to stop with a timeout.
// Returns true if the VU stopped in time.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped and runs the OnStop hook if the
// VU was started.
func (vu *VirtualUser) MarkStopped(ctx context.Context) {
	if vu.GetState() == VUStateStopped {
		return
	}
	vu.state.Store(int32(VUStateStopped))

	if s, ok := vu.profile.(Stopper); ok && vu.started {
		s.OnStop(ctx, vu)
	}

	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}

// BasicAuth holds HTTP basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Request describes one HTTP request issued by a VU.
type Request struct {
	// Name groups the request in statistics. Defaults to Path.
	Name string

	Method string

	// Path is appended to the VU's host. Absolute URLs are used as-is.
	Path string

	Header http.Header
	Body   []byte
	Auth   *BasicAuth
}

// Response is what a VU observed for one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Do executes req and records it in the metrics engine.
//
// A transport error or a status >= 400 counts as a failed request and is
// added to the failure table. Errors caused by ctx ending are returned but
// not recorded. Redirects are only followed when the scheduler
// was configured to do so.
func (vu *VirtualUser) Do(ctx context.Context, req Request) (*Response, error) {
	name := req.Name
	if name == "" {
		name = req.Path
	}

	start := time.Now()
	resp, err := vu.do(ctx, req)
	duration := time.Since(start)

	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() != nil {
			return nil, err
		}
		vu.Metrics.RecordLatency(duration, name, false, 0)
		vu.Metrics.RecordFailure(name, err.Error())
		return nil, err
	}

	resp.Duration = duration
	success := resp.StatusCode < 400
	vu.Metrics.RecordLatency(duration, name, success, int64(len(resp.Body)))
	if !success {
		vu.Metrics.RecordFailure(name, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	return resp, nil
}

func (vu *VirtualUser) do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, JoinURL(vu.Host, req.Path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Auth != nil {
		httpReq.SetBasicAuth(req.Auth.Username, req.Auth.Password)
	}

	resp, err := vu.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// JoinURL returns host followed by path. A path that is already an absolute
// URL is returned unchanged.
func JoinURL(host, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasSuffix(host, "/") && strings.HasPrefix(path, "/") {
		return host + path[1:]
	}
	return host + path
}
