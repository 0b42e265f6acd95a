// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationForMagicKey(t *testing.T) {
	assert.Equal(t, DemoMeasuringSeconds*time.Second, DurationForMagicKey(DemoMagicKey))
	assert.Equal(t, DefaultMeasuringSeconds*time.Second, DurationForMagicKey("anything-else"))
}

func TestManagerNoteICMPErrorFromPeerTearsDownAfterThreshold(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	s := m.NewSession(ctx, "conn-1", "survey-1", DemoMagicKey, DataChannels{})
	peer := &net.UDPAddr{IP: net.ParseIP("203.0.113.9"), Port: 4242}
	m.OnConnected(s, peer)

	for i := 0; i < icmpErrorThreshold; i++ {
		m.NoteICMPErrorFromPeer(peer)
	}

	require.Eventually(t, func() bool {
		_, ok := m.Get("conn-1")
		return !ok
	}, time.Second, time.Millisecond)
}

func TestManagerNoteICMPErrorFromPeerIgnoresUnknownPeer(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()
	m.NewSession(ctx, "conn-1", "survey-1", "DEMO", DataChannels{})

	m.NoteICMPErrorFromPeer(&net.UDPAddr{IP: net.ParseIP("198.51.100.2"), Port: 1})

	_, ok := m.Get("conn-1")
	assert.True(t, ok)
}

func TestManagerUnregisterIsIdempotent(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()
	m.NewSession(ctx, "conn-1", "survey-1", "DEMO", DataChannels{})

	m.Unregister(ctx, "conn-1")
	m.Unregister(ctx, "conn-1")

	_, ok := m.Get("conn-1")
	assert.False(t, ok)
}
