// SPDX-License-Identifier: Apache-2.0

package sendpath

import (
	"context"
	"runtime/debug"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// dtlsLayer implements propagation rule 5. When BypassDTLS is requested the
// plaintext payload is forwarded to the ICE layer untouched. Otherwise this
// package has no real DTLS record writer to forward transport options
// through — that implementation lives in pion's unexported SCTP/DTLS
// internals, an external collaborator per this system's scope — so the
// default trait behavior applies: log the dropped options at ERROR with a
// stack snapshot and continue with an unoptioned send, per the "option
// dropped by intermediate layer" failure semantics.
type dtlsLayer struct {
	next  Sender
	stats *Stats
}

func newDTLSLayer(next Sender, stats *Stats) Sender {
	return &dtlsLayer{next: next, stats: stats}
}

func (d *dtlsLayer) SendWithOptions(ctx context.Context, payload []byte, opts SendOptions) error {
	d.stats.observeSend("dtls")

	if opts.BypassDTLS {
		return d.next.SendWithOptions(ctx, payload, opts)
	}

	if !opts.IsZero() {
		log := logger.FromContext(ctx)
		log.ErrorContext(ctx, "DTLS layer has no send_with_options override for encrypted records, dropping options",
			"stack", string(debug.Stack()))
		d.stats.observeFallback("dtls")
	}
	return d.next.SendWithOptions(ctx, payload, SendOptions{})
}
