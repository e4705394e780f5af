// Package pace provides cancellable sleeps backed by a pool of reusable timers.
//
// Every delay in the prober (inter-byte pacing, receive polling, heartbeat
// intervals, line pulses) goes through Sleep so that an operator interrupt is
// observed within one timer tick.
package pace

import (
	"context"
	"sync"
	"time"
)

var timerPool sync.Pool

// getTimer returns a timer for the given duration d from the pool.
//
// Return the timer to the pool with putTimer.
func getTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			select {
			case <-t.C:
			default:
			}
		}

		return t
	}

	return time.NewTimer(d)
}

// putTimer returns t to the pool. t cannot be accessed after returning to the pool.
func putTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
//
// It returns ctx.Err() when interrupted. A non-positive d only checks ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := getTimer(d)
	defer putTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SleepUntil blocks until deadline or until ctx is done.
func SleepUntil(ctx context.Context, deadline time.Time) error {
	return Sleep(ctx, time.Until(deadline))
}
