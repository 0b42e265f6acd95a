// SPDX-License-Identifier: Apache-2.0

package probestream

import (
	"sync"
	"time"

	"github.com/dt-netlab/pathcast/pkg/wire"
)

// probeFeedbackWindow is PROBE_FEEDBACK_WINDOW_MS from spec §4.7: the
// lookback used for the recent_count/recent_reorders embedded in our own
// sender loop's feedback field.
const probeFeedbackWindow = time.Second

// directionState is ProbeState (spec §3), scoped to one direction of one
// session. Inbound arrivals update it directly; the per-second reporter
// reads a snapshot from it.
type directionState struct {
	mu sync.Mutex

	hasHighest     bool
	highestSeq     uint64
	recentCount    int
	recentReorders int
	windowAnchor   time.Time

	baselineSum   float64
	baselineCount int

	hasLastDelay bool
	lastDelayMs  float64

	// windowMinSeq/windowReceived back the per-report loss-rate formula
	// (spec §4.7); reset every time the reporter takes a snapshot.
	hasWindowSeq  bool
	windowMinSeq  uint64
	windowMaxSeq  uint64
	windowReceived int

	delay  *multiWindow
	jitter *multiWindow
	rtt    *multiWindow
}

func newDirectionState() *directionState {
	return &directionState{
		delay:  newMultiWindow(),
		jitter: newMultiWindow(),
		rtt:    newMultiWindow(),
	}
}

// recordArrival folds in one inbound probe's observed delay (spec §4.7
// receiver logic): updates highest-seq/reorder tally, jitter, the
// outlier-filtered baseline, and the rolling window buffers.
func (d *directionState) recordArrival(seq uint64, delayMs float64, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reorder := d.hasHighest && seq < d.highestSeq
	if !d.hasHighest || seq > d.highestSeq {
		d.highestSeq = seq
		d.hasHighest = true
	}

	if now.Sub(d.windowAnchor) > probeFeedbackWindow {
		d.windowAnchor = now
		d.recentCount = 0
		d.recentReorders = 0
	}
	d.recentCount++
	if reorder {
		d.recentReorders++
	}

	if !d.hasWindowSeq {
		d.windowMinSeq, d.windowMaxSeq = seq, seq
		d.hasWindowSeq = true
	} else {
		if seq < d.windowMinSeq {
			d.windowMinSeq = seq
		}
		if seq > d.windowMaxSeq {
			d.windowMaxSeq = seq
		}
	}
	d.windowReceived++

	baseline := d.currentBaselineLocked()
	accept := d.baselineCount == 0 || delayMs < 3*baseline
	if accept {
		d.baselineSum += delayMs
		d.baselineCount++
		baseline = d.currentBaselineLocked()
	}

	deviation := delayMs - baseline
	d.delay.add(deviation, now)

	if d.hasLastDelay {
		jitter := delayMs - d.lastDelayMs
		if jitter < 0 {
			jitter = -jitter
		}
		d.jitter.add(jitter, now)
	}
	d.lastDelayMs = delayMs
	d.hasLastDelay = true
}

func (d *directionState) currentBaselineLocked() float64 {
	if d.baselineCount == 0 {
		return 0
	}
	return d.baselineSum / float64(d.baselineCount)
}

// recordRTT feeds an RTT-on-echo sample into the rolling buffers.
func (d *directionState) recordRTT(rttMs float64, now time.Time) {
	d.rtt.add(rttMs, now)
}

// feedback builds the wire.Feedback snapshot embedded in our own outbound
// probes, describing what we've observed of the other direction.
func (d *directionState) feedback(now time.Time) wire.Feedback {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb := wire.Feedback{
		RecentCount:    d.recentCount,
		RecentReorders: d.recentReorders,
	}
	if d.hasHighest {
		fb.HighestSeq = d.highestSeq
		fb.HighestSeqReceivedAtMs = uint64(now.UnixMilli())
	}
	return fb
}

// feedbackDirectionState tracks the direction we have no direct delay
// samples for: our own sends, as reported back to us by the peer's
// embedded feedback (spec §4.7 "s2c_stats from the peer's reports plus
// local sends"). Loss/reorder/probe_count come straight from the feedback
// fields; only RTT is locally observable, via recordRTT.
type feedbackDirectionState struct {
	mu sync.Mutex

	lastRecentCount    int
	lastRecentReorders int
	rtt                *multiWindow
}

func newFeedbackDirectionState() *feedbackDirectionState {
	return &feedbackDirectionState{rtt: newMultiWindow()}
}

func (d *feedbackDirectionState) observeFeedback(fb wire.Feedback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastRecentCount = fb.RecentCount
	d.lastRecentReorders = fb.RecentReorders
}

func (d *feedbackDirectionState) recordRTT(rttMs float64, now time.Time) {
	d.rtt.add(rttMs, now)
}

// snapshot reports DirectionStats for the direction we sent; sentCount is
// how many probes we sent in the reporting window, used against the peer's
// reported recentCount to derive a loss rate symmetric with the receiver
// side's formula (spec §4.7).
func (d *feedbackDirectionState) snapshot(now time.Time, sentCount int) wire.DirectionStats {
	d.mu.Lock()
	count := d.lastRecentCount
	reorders := d.lastRecentReorders
	d.mu.Unlock()

	lossRate := 0.0
	if sentCount > 0 {
		lost := sentCount - count
		if lost < 0 {
			lost = 0
		}
		lossRate = float64(lost) / float64(sentCount)
	}
	reorderRate := 0.0
	if count > 0 {
		reorderRate = float64(reorders) / float64(count)
	}

	return wire.DirectionStats{
		RTTMs:       d.rtt.percentiles(now),
		LossRate:    lossRate,
		ReorderRate: reorderRate,
		ProbeCount:  count,
	}
}

// snapshot produces DirectionStats for the per-second report (spec §4.7)
// and resets the per-report window bookkeeping used for the loss formula.
func (d *directionState) snapshot(now time.Time) wire.DirectionStats {
	d.mu.Lock()
	lossRate := 0.0
	if d.hasWindowSeq {
		expected := int(d.windowMaxSeq-d.windowMinSeq) + 1
		if expected > 0 {
			lost := expected - d.windowReceived
			if lost < 0 {
				lost = 0
			}
			lossRate = float64(lost) / float64(expected)
		}
	}
	reorderRate := 0.0
	if d.windowReceived > 0 {
		reorderRate = float64(d.recentReorders) / float64(d.windowReceived)
	}
	probeCount := d.windowReceived
	baseline := d.currentBaselineLocked()

	d.hasWindowSeq = false
	d.windowReceived = 0
	d.mu.Unlock()

	return wire.DirectionStats{
		DelayDeviationMs: d.delay.percentiles(now),
		JitterMs:         d.jitter.percentiles(now),
		RTTMs:            d.rtt.percentiles(now),
		LossRate:         lossRate,
		ReorderRate:      reorderRate,
		ProbeCount:       probeCount,
		BaselineDelayMs:  baseline,
	}
}
