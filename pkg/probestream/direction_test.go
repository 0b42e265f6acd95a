// SPDX-License-Identifier: Apache-2.0

package probestream

import (
	"testing"
	"time"

	"github.com/dt-netlab/pathcast/pkg/wire"
	"github.com/stretchr/testify/assert"
)

func TestDirectionStateDetectsReorder(t *testing.T) {
	d := newDirectionState()
	now := time.Now()

	d.recordArrival(10, 20, now)
	d.recordArrival(11, 20, now.Add(time.Millisecond))
	d.recordArrival(9, 20, now.Add(2*time.Millisecond)) // reorder: 9 < highest (11)

	snap := d.snapshot(now.Add(3 * time.Millisecond))
	assert.Greater(t, snap.ReorderRate, 0.0)
}

func TestDirectionStateRejectsDelayOutliers(t *testing.T) {
	d := newDirectionState()
	now := time.Now()

	for i := 0; i < 20; i++ {
		d.recordArrival(uint64(i), 10, now.Add(time.Duration(i)*time.Millisecond))
	}
	before := d.currentBaselineLocked()

	// An outlier far beyond 3x baseline must not be folded into it.
	d.recordArrival(21, 1000, now.Add(21*time.Millisecond))
	after := d.currentBaselineLocked()

	assert.InDelta(t, before, after, 0.001)
}

func TestDirectionStateLossRateWithinWindow(t *testing.T) {
	d := newDirectionState()
	now := time.Now()

	d.recordArrival(1, 10, now)
	d.recordArrival(2, 10, now)
	// seq 3 never arrives
	d.recordArrival(4, 10, now)

	snap := d.snapshot(now)
	assert.InDelta(t, 0.25, snap.LossRate, 0.001) // expected 4, received 3
}

func TestDirectionStateFeedsAllWindowBuckets(t *testing.T) {
	d := newDirectionState()
	now := time.Now()

	d.recordArrival(1, 10, now)

	assert.Equal(t, 1, d.delay.w1s.count(now))
	assert.Equal(t, 1, d.delay.w10s.count(now))
	assert.Equal(t, 1, d.delay.w60s.count(now))

	// A sample 5s old has aged out of the 1s bucket but survives in 10s/60s.
	later := now.Add(5 * time.Second)
	assert.Equal(t, 0, d.delay.w1s.count(later))
	assert.Equal(t, 1, d.delay.w10s.count(later))
	assert.Equal(t, 1, d.delay.w60s.count(later))
}

func TestFeedbackDirectionStateLossRate(t *testing.T) {
	d := newFeedbackDirectionState()
	now := time.Now()
	d.observeFeedback(wire.Feedback{RecentCount: 90, RecentReorders: 2})

	snap := d.snapshot(now, 100)
	assert.InDelta(t, 0.10, snap.LossRate, 0.001)
	assert.Equal(t, 90, snap.ProbeCount)
}
