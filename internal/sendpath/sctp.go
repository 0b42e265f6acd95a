// SPDX-License-Identifier: Apache-2.0

package sendpath

import "context"

// sctpStreamLayer packetizes the message per propagation rule 2: a single
// chunk when BypassSCTPFragmentation is requested or the payload already
// fits in one chunk, otherwise chunks of at most maxPayload bytes. The
// options are logically attached to the first (or only) chunk; since the
// association layer below bundles the whole message under one call, that
// inheritance falls out of the call shape rather than needing to be
// re-derived per chunk.
type sctpStreamLayer struct {
	next       Sender
	maxPayload int
	stats      *Stats
}

func newSCTPStreamLayer(next Sender, maxPayload int, stats *Stats) Sender {
	if maxPayload <= 0 {
		maxPayload = 1200
	}
	return &sctpStreamLayer{next: next, maxPayload: maxPayload, stats: stats}
}

func (s *sctpStreamLayer) SendWithOptions(ctx context.Context, payload []byte, opts SendOptions) error {
	s.stats.observeSend("sctp_stream")

	if opts.BypassSCTPFragmentation || len(payload) <= s.maxPayload {
		return s.next.SendWithOptions(ctx, payload, opts)
	}

	for off := 0; off < len(payload); off += s.maxPayload {
		end := off + s.maxPayload
		if end > len(payload) {
			end = len(payload)
		}
		if err := s.next.SendWithOptions(ctx, payload[off:end], opts); err != nil {
			return err
		}
	}
	return nil
}
