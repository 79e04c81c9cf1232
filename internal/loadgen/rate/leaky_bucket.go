// Package rate paces events such as user spawns at a fixed rate.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket implements the leaky bucket algorithm.
//
// The bucket keeps a virtual drip time that advances at a fixed rate; Next
// returns when the next event should happen. Events that are behind schedule
// fire immediately, but no more than one event of slack is ever banked, so a
// slow consumer never causes a burst.
//
// The first event fires immediately.
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	rate        float64 // events per second
	lastDrip    time.Time
	accumulated float64
	mu          sync.Mutex

	total atomic.Int64
}

// NewLeakyBucket creates a leaky bucket releasing rate events per second.
// A non-positive rate is treated as 1.
func NewLeakyBucket(rate float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	return &LeakyBucket{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1.0,
	}
}

// Next reserves the next event and returns when it should happen.
// The returned time may be in the past.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(lb.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	lb.accumulated += elapsed * lb.rate
	if lb.accumulated > 1.0 {
		lb.accumulated = 1.0
	}

	lb.total.Add(1)

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		lb.lastDrip = now
		return now
	}

	// Reservations queue up behind any slot that is already in the future.
	base := now
	if lb.lastDrip.After(now) {
		base = lb.lastDrip
	}

	deficit := 1.0 - lb.accumulated
	next := base.Add(time.Duration(deficit / lb.rate * float64(time.Second)))

	// lastDrip moves to the reserved slot so waking up at next does not
	// immediately bank another event.
	lb.accumulated = 0
	lb.lastDrip = next

	return next
}

// Wait blocks until the next event should happen or ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	wait := time.Until(lb.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the configured rate in events per second.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Total returns how many events have been reserved.
func (lb *LeakyBucket) Total() int64 {
	return lb.total.Load()
}
