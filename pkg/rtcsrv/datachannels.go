// SPDX-License-Identifier: Apache-2.0

package rtcsrv

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dt-netlab/pathcast/pkg/session"
)

// Channel IDs are fixed and pre-negotiated (spec §3 "four named data
// channels"): both peers declare the same label/ID/reliability settings out
// of band, so no renegotiation round trip or OnDataChannel callback is
// needed to agree on them.
const (
	channelIDProbe     uint16 = 0
	channelIDBulk      uint16 = 1
	channelIDControl   uint16 = 2
	channelIDTestProbe uint16 = 3
)

func boolPtr(v bool) *bool       { return &v }
func uint16Ptr(v uint16) *uint16 { return &v }

// unreliableUnordered is shared by probe, bulk and testprobe (spec §3: all
// three are "unreliable, unordered (zero retransmits)").
func unreliableUnordered(id uint16) *webrtc.DataChannelInit {
	return &webrtc.DataChannelInit{
		Ordered:        boolPtr(false),
		MaxRetransmits: uint16Ptr(0),
		Negotiated:     boolPtr(true),
		ID:             uint16Ptr(id),
	}
}

func reliableOrdered(id uint16) *webrtc.DataChannelInit {
	return &webrtc.DataChannelInit{
		Ordered:    boolPtr(true),
		Negotiated: boolPtr(true),
		ID:         uint16Ptr(id),
	}
}

// createDataChannels creates the four named channels on pc (spec §4.4
// Contract "Creates the four data channels on peer connection
// establishment"), returning them keyed by label for handler wiring.
func createDataChannels(pc *webrtc.PeerConnection) (map[string]*webrtc.DataChannel, error) {
	specs := []struct {
		label string
		init  *webrtc.DataChannelInit
	}{
		{session.ChannelProbe, unreliableUnordered(channelIDProbe)},
		{session.ChannelBulk, unreliableUnordered(channelIDBulk)},
		{session.ChannelControl, reliableOrdered(channelIDControl)},
		{session.ChannelTestProbe, unreliableUnordered(channelIDTestProbe)},
	}

	out := make(map[string]*webrtc.DataChannel, len(specs))
	for _, spec := range specs {
		dc, err := pc.CreateDataChannel(spec.label, spec.init)
		if err != nil {
			return nil, fmt.Errorf("rtcsrv: creating %s data channel: %w", spec.label, err)
		}
		out[spec.label] = dc
	}
	return out, nil
}
