// SPDX-License-Identifier: Apache-2.0

package sendpath

import "context"

// sctpAssociationLayer bundles chunks of one message into one outbound SCTP
// packet. Propagation rule 3 says the packet inherits options from its first
// chunk and later chunks must not override it; because sctpStreamLayer calls
// this layer once per message with a single opts value, that invariant holds
// by construction rather than needing extra bookkeeping here. Rule 4: the
// write loop calls send_with_options on the underlying connection when
// options are present, plain send otherwise — which, since SendOptions with
// a zero value already behaves like an ordinary send throughout the chain,
// collapses to always calling through.
type sctpAssociationLayer struct {
	next  Sender
	stats *Stats
}

func newSCTPAssociationLayer(next Sender, stats *Stats) Sender {
	return &sctpAssociationLayer{next: next, stats: stats}
}

func (a *sctpAssociationLayer) SendWithOptions(ctx context.Context, payload []byte, opts SendOptions) error {
	a.stats.observeSend("sctp_association")
	return a.next.SendWithOptions(ctx, payload, opts)
}
