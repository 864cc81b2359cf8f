package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxWait      = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// grow doubles the wait after a failed batch, capped at maxWait.
func grow(current, base time.Duration) time.Duration {
	if current < base {
		current = base
	}
	return min(current*2, maxWait)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
