// SPDX-License-Identifier: Apache-2.0

package rtcsrv

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dt-netlab/pathcast/pkg/session"
)

func TestCreateDataChannelsLabelsAndReliability(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	channels, err := createDataChannels(pc)
	require.NoError(t, err)
	require.Len(t, channels, 4)

	for _, label := range []string{session.ChannelProbe, session.ChannelBulk, session.ChannelControl, session.ChannelTestProbe} {
		dc, ok := channels[label]
		require.True(t, ok, "missing channel %q", label)
		assert.Equal(t, label, dc.Label())
	}

	assert.True(t, channels[session.ChannelControl].Ordered(), "control must be ordered")
	assert.False(t, channels[session.ChannelProbe].Ordered(), "probe must be unordered")
	assert.False(t, channels[session.ChannelBulk].Ordered(), "bulk must be unordered")
	assert.False(t, channels[session.ChannelTestProbe].Ordered(), "testprobe must be unordered")

	require.NotNil(t, channels[session.ChannelProbe].MaxRetransmits())
	assert.Equal(t, uint16(0), *channels[session.ChannelProbe].MaxRetransmits())
}

func TestResolvePeerAddrWithoutNominatedPairReturnsNil(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	assert.Nil(t, resolvePeerAddr(pc))
}
