package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/ciload/internal/loadgen"
	"github.com/wesleyorama2/ciload/internal/loadgen/metrics"
	"github.com/wesleyorama2/ciload/internal/loadgen/rate"
)

// Users runs a fixed population of simulated users (closed model).
//
// Users are started at SpawnRate per second until Users are running, then
// each keeps looping task and wait until Duration expires or the context is
// cancelled. Throughput is governed by the users' wait times, not by the
// executor.
type Users struct {
	config  *Config
	metrics *metrics.Engine

	// mu guards the fields below
	mu        sync.RWMutex
	scheduler *loadgen.VUScheduler
	startTime time.Time
	spawned   []*loadgen.VirtualUser

	activeVUs atomic.Int32
	running   atomic.Bool
	finished  atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewUsers creates a new users executor.
func NewUsers() *Users {
	return &Users{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Type returns the executor type.
func (e *Users) Type() Type {
	return TypeUsers
}

// Init initializes the executor with configuration.
func (e *Users) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeUsers {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeUsers, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run spawns users and blocks until the run is over and every user stopped.
func (e *Users) Run(ctx context.Context, scheduler *loadgen.VUScheduler, metricsEngine *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("executor already running")
	}
	defer close(e.done)

	e.metrics = metricsEngine

	e.mu.Lock()
	e.scheduler = scheduler
	e.startTime = time.Now()
	e.mu.Unlock()

	var runCtx context.Context
	var cancel context.CancelFunc
	if e.config.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.config.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// A Stop that arrived before Run is honored before the first spawn.
	select {
	case <-e.stopCh:
		cancel()
	default:
		go func() {
			select {
			case <-e.stopCh:
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	// Users outlive runCtx so in-flight tasks can finish during the
	// graceful stop. Cancelling the parent still aborts them.
	vuCtx, vuCancel := context.WithCancel(ctx)
	defer vuCancel()

	e.metrics.SetPhase(metrics.PhaseSpawning)
	e.spawn(runCtx, vuCtx)
	if runCtx.Err() == nil {
		e.metrics.SetPhase(metrics.PhaseSteady)
	}

	<-runCtx.Done()

	e.metrics.SetPhase(metrics.PhaseStopping)
	e.scheduler.Shutdown(e.gracefulStop())
	vuCancel()
	e.wg.Wait()

	e.metrics.SetPhase(metrics.PhaseDone)
	e.finished.Store(true)
	e.running.Store(false)

	return nil
}

// spawn starts users at the configured rate. The first user starts
// immediately.
func (e *Users) spawn(runCtx, vuCtx context.Context) {
	var bucket *rate.LeakyBucket
	if e.config.SpawnRate > 0 {
		bucket = rate.NewLeakyBucket(e.config.SpawnRate)
	}

	for i := 0; i < e.config.Users; i++ {
		if bucket != nil {
			if err := bucket.Wait(runCtx); err != nil {
				return
			}
		} else if runCtx.Err() != nil {
			return
		}

		vu := e.scheduler.SpawnVU()
		e.mu.Lock()
		e.spawned = append(e.spawned, vu)
		e.mu.Unlock()

		e.wg.Add(1)
		go e.runVU(vuCtx, vu)
	}
}

func (e *Users) runVU(ctx context.Context, vu *loadgen.VirtualUser) {
	defer e.wg.Done()

	e.activeVUs.Add(1)
	defer e.activeVUs.Add(-1)

	e.scheduler.RunVU(ctx, vu)
}

func (e *Users) gracefulStop() time.Duration {
	if e.config.GracefulStop > 0 {
		return e.config.GracefulStop
	}
	return DefaultGracefulStop
}

// GetProgress returns current progress (0.0 to 1.0).
//
// Runs without a duration report spawn progress while spawning and 0.5
// afterwards, until they finish.
func (e *Users) GetProgress() float64 {
	if e.finished.Load() {
		return 1.0
	}

	e.mu.RLock()
	startTime := e.startTime
	spawned := len(e.spawned)
	e.mu.RUnlock()

	if startTime.IsZero() || e.config == nil {
		return 0.0
	}

	if e.config.Duration <= 0 {
		return float64(spawned) / float64(e.config.Users) * 0.5
	}

	progress := float64(time.Since(startTime)) / float64(e.config.Duration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *Users) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetStats returns executor statistics.
func (e *Users) GetStats() *Stats {
	e.mu.RLock()
	startTime := e.startTime
	var iterations int64
	var taskErrors int64
	for _, vu := range e.spawned {
		iterations += vu.GetIteration()
	}
	spawned := len(e.spawned)
	if spawned > 0 {
		taskErrors = e.scheduler.TaskErrors()
	}
	e.mu.RUnlock()

	var elapsed time.Duration
	if !startTime.IsZero() {
		elapsed = time.Since(startTime)
	}

	return &Stats{
		StartTime:     startTime,
		CurrentTime:   time.Now(),
		Elapsed:       elapsed,
		TotalDuration: e.config.Duration,
		ActiveVUs:     int(e.activeVUs.Load()),
		TargetVUs:     e.config.Users,
		SpawnedVUs:    spawned,
		Iterations:    iterations,
		TaskErrors:    taskErrors,
		SpawnRate:     e.config.SpawnRate,
	}
}

// Stop ends the run and waits for Run to return. Called before Run, it
// makes the next Run return without spawning anyone.
func (e *Users) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })

	if !e.running.Load() {
		return nil
	}

	// Run waits up to the graceful stop itself; allow a little beyond it.
	limit := e.gracefulStop() + time.Second

	select {
	case <-e.done:
		return nil
	case <-time.After(limit):
		return fmt.Errorf("graceful stop timeout after %v", limit)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure Users implements Executor
var _ Executor = (*Users)(nil)
