// SPDX-License-Identifier: Apache-2.0

package sendpath

import "context"

// Sender is the capability every layer of the transport stack exposes: send
// this payload, honoring opts as far down the stack as possible. A layer
// that has no per-packet override for some requested option MUST log and
// fall back to an ordinary send rather than drop the option silently.
type Sender interface {
	SendWithOptions(ctx context.Context, payload []byte, opts SendOptions) error
}

// Build assembles the full decorator chain described in the option-carrying
// send path: data channel -> SCTP stream -> SCTP association -> DTLS -> ICE
// -> udp, terminating in udp, the caller-supplied bottom layer that owns the
// real socket. maxPayload is the configured SCTP chunk size used when
// BypassSCTPFragmentation is not requested.
func Build(udp Sender, stats *Stats, maxPayload int) Sender {
	ice := newICELayer(udp, stats)
	dtls := newDTLSLayer(ice, stats)
	assoc := newSCTPAssociationLayer(dtls, stats)
	stream := newSCTPStreamLayer(assoc, maxPayload, stats)
	return newDataChannelLayer(stream, stats)
}
