// Package loadgen runs simulated users against an HTTP target.
//
// A Profile describes what one simulated user does: a task it repeats and
// the wait time between repetitions. The VUScheduler spawns VirtualUsers
// for a profile, and executors decide how many run and for how long.
package loadgen

import (
	"context"
	"math/rand"
	"time"
)

// Profile defines the behavior of one kind of simulated user.
type Profile interface {
	// Name identifies the profile on the command line and in reports.
	Name() string

	// WaitTime returns the pause applied after every task.
	WaitTime() WaitTime

	// Task performs one repetition. Request failures are recorded by
	// VirtualUser.Do and are not returned; an error here means the task
	// itself could not run.
	Task(ctx context.Context, vu *VirtualUser) error
}

// Starter is implemented by profiles that need per-user setup.
// OnStart runs once, before the first task of each user.
type Starter interface {
	OnStart(ctx context.Context, vu *VirtualUser) error
}

// Stopper is implemented by profiles that need per-user teardown.
type Stopper interface {
	OnStop(ctx context.Context, vu *VirtualUser)
}

// WaitBounder is implemented by profiles that can report the range their
// WaitTime draws from.
type WaitBounder interface {
	WaitBounds() (min, max time.Duration)
}

// WaitTime draws the pause between two tasks from the user's own rand source.
type WaitTime func(r *rand.Rand) time.Duration

// Between returns a WaitTime uniformly distributed in [min, max].
func Between(min, max time.Duration) WaitTime {
	if max < min {
		min, max = max, min
	}
	return func(r *rand.Rand) time.Duration {
		diff := max - min
		if diff <= 0 {
			return min
		}
		return min + time.Duration(r.Int63n(int64(diff)+1))
	}
}

// Constant returns a WaitTime that always waits d.
func Constant(d time.Duration) WaitTime {
	return func(*rand.Rand) time.Duration {
		return d
	}
}

// NoWait runs tasks back to back.
func NoWait() WaitTime {
	return Constant(0)
}
