// SPDX-License-Identifier: Apache-2.0

package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, maxMeasuring time.Duration) *Session {
	t.Helper()
	return New("conn-1", "survey-1", "DEMO", DataChannels{}, maxMeasuring)
}

func TestStartProbeStreamsRestartsClock(t *testing.T) {
	s := newTestSession(t, time.Hour)

	s.StartProbeStreams()
	first := s.probeStartedAt

	time.Sleep(5 * time.Millisecond)
	s.StartProbeStreams()
	second := s.probeStartedAt

	assert.True(t, second.After(first))
	assert.True(t, s.ProbeStreamsActive())
}

func TestStopProbeStreamsIdempotent(t *testing.T) {
	s := newTestSession(t, time.Hour)
	s.StartProbeStreams()

	s.StopProbeStreams()
	s.StopProbeStreams()

	assert.False(t, s.ProbeStreamsActive())
}

func TestProbeDeadlineExceededStopsStreams(t *testing.T) {
	s := newTestSession(t, 10*time.Millisecond)
	s.StartProbeStreams()

	require.Eventually(t, func() bool {
		return s.ProbeDeadlineExceeded()
	}, time.Second, time.Millisecond)

	assert.False(t, s.ProbeStreamsActive())
}

func TestNoteICMPErrorThreshold(t *testing.T) {
	s := newTestSession(t, time.Hour)

	for i := 0; i < icmpErrorThreshold-1; i++ {
		assert.False(t, s.NoteICMPError())
	}
	assert.True(t, s.NoteICMPError())
}

func TestStopIsIdempotentAndClosesDone(t *testing.T) {
	s := newTestSession(t, time.Hour)
	s.MarkConnected(&net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 9000})

	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
	assert.False(t, s.TrafficActive())
}
