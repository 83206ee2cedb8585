// Package layout gates rendering-engine initialization on the display
// surface reporting stable, non-zero dimensions.
//
// Sandboxed display surfaces may report zero size for one or more frames
// after becoming visible. Initializing an engine against a zero-size
// canvas corrupts its coordinate system irrecoverably, so the gate
// blocks initialization rather than merely delaying it.
package layout

import (
	"context"
	"fmt"
	"time"
)

// Container is the rendered surface whose dimensions are polled.
type Container interface {
	// Bounds reports the current width and height in display units.
	Bounds() (width, height int)
}

// Options tunes the readiness gate.
type Options struct {
	// Timeout bounds the whole wait. Zero means DefaultTimeout.
	Timeout time.Duration
	// Interval is the poll period between frame checks. Zero means
	// DefaultInterval (~60Hz).
	Interval time.Duration
}

const (
	DefaultTimeout  = 2000 * time.Millisecond
	DefaultInterval = 16 * time.Millisecond

	// minWidth is the smallest usable container width.
	minWidth = 100
	// stableDelta is the maximum width change between two consecutive
	// checks still considered stable.
	stableDelta = 10
)

// TimeoutError reports that the container never stabilized within the
// deadline. LastWidth carries the final observed width for diagnostics.
type TimeoutError struct {
	LastWidth int
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("layout: container never stabilized after %s (last width %d)", e.Elapsed, e.LastWidth)
}

// Await blocks until the container reports width >= 100 and height > 0,
// held stable (width delta < 10) across two consecutive checks, or fails
// with *TimeoutError. An explicit bounded loop with deadline accounting,
// not recursion, so cancellation stays linear.
func Await(ctx context.Context, c Container, opts Options) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := time.Now()
	deadline := start.Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastWidth := 0
	havePrev := false

	for {
		w, h := c.Bounds()
		if w >= minWidth && h > 0 {
			if havePrev && abs(w-lastWidth) < stableDelta {
				return nil
			}
			havePrev = true
		} else {
			havePrev = false
		}
		lastWidth = w

		if time.Now().After(deadline) {
			return &TimeoutError{LastWidth: lastWidth, Elapsed: time.Since(start)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
