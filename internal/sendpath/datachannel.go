// SPDX-License-Identifier: Apache-2.0

package sendpath

import "context"

// dataChannelLayer is the topmost layer of the chain: the data-channel-like
// surface the orchestrators call send_with_options on. Per propagation rule
// 1, it forwards options to the SCTP stream layer unchanged.
type dataChannelLayer struct {
	next  Sender
	stats *Stats
}

func newDataChannelLayer(next Sender, stats *Stats) Sender {
	return &dataChannelLayer{next: next, stats: stats}
}

func (d *dataChannelLayer) SendWithOptions(ctx context.Context, payload []byte, opts SendOptions) error {
	d.stats.observeSend("data_channel")
	return d.next.SendWithOptions(ctx, payload, opts)
}
