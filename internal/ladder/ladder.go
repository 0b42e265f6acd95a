// SPDX-License-Identifier: Apache-2.0

// Package ladder holds the pacing and drain-window logic shared by the
// traceroute and MTU orchestrators (spec §4.5, §4.6): both iterate a
// schedule of probes with a fixed inter-probe gap, then poll the packet
// tracker for a fixed window afterward.
package ladder

import (
	"context"
	"time"

	"github.com/dt-netlab/pathcast/internal/tracker"
)

// Pace blocks for delay, returning false without waiting out the full delay
// if ctx is cancelled or done fires first, so cancellation latency stays
// bounded (spec §5).
func Pace(ctx context.Context, done <-chan struct{}, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case <-time.After(delay):
		return true
	}
}

// Drain polls the tracker for connID's queued events every poll interval
// until window has elapsed, then performs one final drain, invoking
// onEvent for each matched event in arrival order. Returns false if ctx or
// done fired before the window closed.
func Drain(ctx context.Context, done <-chan struct{}, trk *tracker.Tracker, connID string, window, poll time.Duration, onEvent func(tracker.Event)) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		for _, ev := range trk.DrainEventsFor(connID) {
			onEvent(ev)
		}
		select {
		case <-ctx.Done():
			return false
		case <-done:
			return false
		case <-time.After(poll):
		}
	}
	for _, ev := range trk.DrainEventsFor(connID) {
		onEvent(ev)
	}
	return true
}
