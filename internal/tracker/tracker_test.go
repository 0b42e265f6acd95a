// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"net"
	"testing"
	"time"

	"github.com/dt-netlab/pathcast/internal/icmplisten"
	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUDPAddr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", s)
	require.NoError(t, err)
	return a
}

func TestTrackAndMatchICMP(t *testing.T) {
	tr := New(0)
	dest := mustUDPAddr(t, "203.0.113.5:5000")
	sentAt := time.Now()

	tr.TrackFor(t.Context(), "conn-1", dest, 150, []byte("probe"), sendpath.SendOptions{TTL: sendpath.U8(3), TrackForMs: 5000}, sentAt)
	require.Equal(t, 1, tr.Len())

	recvAt := sentAt.Add(20 * time.Millisecond)
	ev, ok := tr.MatchICMP(icmplisten.ParsedIcmpError{
		SourceAddr:   mustUDPAddr(t, "198.51.100.1:0"),
		EmbeddedDest: dest,
		UDPLength:    150,
		ICMPType:     icmplisten.TypeTimeExceededV4,
		ReceivedAt:   recvAt,
	})
	require.True(t, ok)
	assert.Equal(t, "conn-1", ev.ConnID)
	assert.Equal(t, 20*time.Millisecond, ev.RTT)
	assert.Equal(t, 0, tr.Len(), "matched entry must be removed")

	events := tr.DrainEventsFor("conn-1")
	require.Len(t, events, 1)
	assert.Empty(t, tr.DrainEventsFor("conn-1"), "drain must clear the queue")
}

func TestMatchICMPFirstMatchWins(t *testing.T) {
	tr := New(0)
	dest := mustUDPAddr(t, "203.0.113.5:5000")
	tr.TrackFor(t.Context(), "conn-1", dest, 200, []byte("x"), sendpath.SendOptions{TrackForMs: 1000}, time.Now())

	parsed := icmplisten.ParsedIcmpError{EmbeddedDest: dest, UDPLength: 200, ReceivedAt: time.Now()}
	_, first := tr.MatchICMP(parsed)
	_, second := tr.MatchICMP(parsed)

	assert.True(t, first)
	assert.False(t, second, "a second ICMP error against an already-matched key must be dropped")
}

func TestMatchICMPMissIsNotFatal(t *testing.T) {
	tr := New(0)
	_, ok := tr.MatchICMP(icmplisten.ParsedIcmpError{
		EmbeddedDest: mustUDPAddr(t, "203.0.113.9:1"),
		UDPLength:    999,
	})
	assert.False(t, ok)
}

func TestExpirySweepRemovesStaleEntries(t *testing.T) {
	tr := New(0)
	dest := mustUDPAddr(t, "203.0.113.5:5000")
	past := time.Now().Add(-time.Hour)
	tr.TrackFor(t.Context(), "conn-1", dest, 300, []byte("x"), sendpath.SendOptions{TrackForMs: 1}, past)

	require.Equal(t, 1, tr.Len())
	removed := tr.sweepOnce(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, tr.Len())
}

func TestTrackEvictsOldestWhenFull(t *testing.T) {
	tr := New(2)
	d1 := mustUDPAddr(t, "203.0.113.1:1")
	d2 := mustUDPAddr(t, "203.0.113.2:1")
	d3 := mustUDPAddr(t, "203.0.113.3:1")

	now := time.Now()
	tr.TrackFor(t.Context(), "c", d1, 100, nil, sendpath.SendOptions{TrackForMs: 5000}, now)
	tr.TrackFor(t.Context(), "c", d2, 100, nil, sendpath.SendOptions{TrackForMs: 5000}, now.Add(time.Millisecond))
	tr.TrackFor(t.Context(), "c", d3, 100, nil, sendpath.SendOptions{TrackForMs: 5000}, now.Add(2*time.Millisecond))

	assert.Equal(t, 2, tr.Len())
	_, ok := tr.MatchICMP(icmplisten.ParsedIcmpError{EmbeddedDest: d1, UDPLength: 100, ReceivedAt: now})
	assert.False(t, ok, "oldest entry (d1) should have been spilled")
}
