// Package pacing computes randomized delays used to space out external
// platform calls and stay under rate limits.
package pacing

import (
	"context"
	"math/rand"
	"time"
)

// Range is an inclusive [Min, Max] delay window.
// A zero Range means "no pause".
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) IsZero() bool { return r.Min <= 0 && r.Max <= 0 }

// Normalize returns a copy with non-negative bounds and Min <= Max.
func (r Range) Normalize() Range {
	if r.Min < 0 {
		r.Min = 0
	}
	if r.Max < r.Min {
		r.Max = r.Min
	}
	return r
}

// Pick returns a uniformly random delay within the range.
func (r Range) Pick() time.Duration {
	r = r.Normalize()
	if r.Max <= 0 {
		return 0
	}
	span := r.Max - r.Min
	if span <= 0 {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int63n(int64(span)+1))
}

// Wait sleeps for a randomly picked delay from the range, returning
// early with ctx.Err() if the context is cancelled.
func Wait(ctx context.Context, r Range) error {
	d := r.Pick()
	if d <= 0 {
		return ctx.Err()
	}
	return Sleep(ctx, d)
}

// Sleep is a context-aware time.Sleep.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
