// SPDX-License-Identifier: Apache-2.0

package sendpath

import (
	"context"
	"encoding/binary"
)

// stunMagicCookie is the fixed cookie present at bytes 4-8 of every STUN
// message header (RFC 5389 section 6).
const stunMagicCookie = 0x2112A442

// iceLayer forwards to the selected candidate pair's underlying UDP socket,
// per propagation rule 6. STUN connectivity-check traffic must never be
// sent through this path; the ICE agent owns that traffic on its own.
type iceLayer struct {
	next  Sender
	stats *Stats
}

func newICELayer(next Sender, stats *Stats) Sender {
	return &iceLayer{next: next, stats: stats}
}

func (i *iceLayer) SendWithOptions(ctx context.Context, payload []byte, opts SendOptions) error {
	i.stats.observeSend("ice")

	if looksLikeSTUN(payload) {
		return errSTUNOnSendPath
	}
	return i.next.SendWithOptions(ctx, payload, opts)
}

// looksLikeSTUN reports whether payload carries the STUN magic cookie at
// the fixed offset, the cheapest reliable discriminator without parsing the
// whole message.
func looksLikeSTUN(payload []byte) bool {
	if len(payload) < 8 {
		return false
	}
	return binary.BigEndian.Uint32(payload[4:8]) == stunMagicCookie
}
