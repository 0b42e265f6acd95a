// SPDX-License-Identifier: Apache-2.0

package probestream

import (
	"sort"
	"sync"
	"time"

	"github.com/dt-netlab/pathcast/pkg/wire"
)

type sample struct {
	value float64
	at    time.Time
}

// rollingWindow retains samples no older than window, pruning lazily on
// read and write (spec §4.7 "rolling-window sample buffers").
type rollingWindow struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
}

func newRollingWindow(window time.Duration) *rollingWindow {
	return &rollingWindow{window: window}
}

func (w *rollingWindow) add(v float64, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, sample{value: v, at: now})
	w.pruneLocked(now)
}

func (w *rollingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for ; i < len(w.samples); i++ {
		if w.samples[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.samples = append([]sample(nil), w.samples[i:]...)
	}
}

// percentiles computes p50/p99/min/max over the window's surviving
// samples, per spec §4.7 "percentiles are computed on the full window
// sample sequence".
func (w *rollingWindow) percentiles(now time.Time) wire.Percentiles {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)

	if len(w.samples) == 0 {
		return wire.Percentiles{}
	}
	values := make([]float64, len(w.samples))
	for i, s := range w.samples {
		values[i] = s.value
	}
	sort.Float64s(values)

	return wire.Percentiles{
		P50: percentileOf(values, 0.50),
		P99: percentileOf(values, 0.99),
		Min: values[0],
		Max: values[len(values)-1],
	}
}

func (w *rollingWindow) count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	return len(w.samples)
}

// multiWindow bundles the 1s/10s/60s rolling buffers spec §3's ProbeState
// names for each of delay/jitter/RTT: one sample feeds all three at once.
type multiWindow struct {
	w1s  *rollingWindow
	w10s *rollingWindow
	w60s *rollingWindow
}

func newMultiWindow() *multiWindow {
	return &multiWindow{
		w1s:  newRollingWindow(time.Second),
		w10s: newRollingWindow(10 * time.Second),
		w60s: newRollingWindow(60 * time.Second),
	}
}

func (m *multiWindow) add(v float64, now time.Time) {
	m.w1s.add(v, now)
	m.w10s.add(v, now)
	m.w60s.add(v, now)
}

// percentiles reports the 1s bucket, the window the per-second reporter
// publishes on the wire (spec §4.7); the 10s/60s buckets are retained for
// longer-horizon baseline/trend consumers, not currently surfaced on the
// wire (see DESIGN.md).
func (m *multiWindow) percentiles(now time.Time) wire.Percentiles {
	return m.w1s.percentiles(now)
}

func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
