// SPDX-License-Identifier: Apache-2.0

package sendpath

import (
	"context"
	"net"
	"time"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// fixedOverheadBytes approximates the SCTP chunk header, DTLS record
// overhead and UDP header that sit between an application payload and the
// wire. The orchestrators separate probe sizes by enough margin that this
// estimate never needs to be exact, per spec.
const fixedOverheadBytes = 60

// Tracker is the minimal surface the UDP socket layer needs from the packet
// tracker: register a sent probe under its correlation key. Defined here,
// consumed by internal/tracker, so this package never imports the tracker's
// richer types.
type Tracker interface {
	Track(dest net.Addr, udpLength int, payload []byte, opts SendOptions, sentAt time.Time)
}

// udpSocketLayer is the bottom of the chain: it owns the real sendmsg call
// and, on success, registers tracked probes. It is built once per session
// destination since the shared UDP socket is multiplexed by the ICE layer
// across every session (spec §5 "the underlying UDP socket is shared across
// all sessions").
type udpSocketLayer struct {
	conn    net.PacketConn
	dest    net.Addr
	tracker Tracker
	stats   *Stats
}

// NewUDPSocketLayer builds the terminal layer of the send-path chain for a
// single session's resolved destination address.
func NewUDPSocketLayer(conn net.PacketConn, dest net.Addr, tracker Tracker, stats *Stats) Sender {
	return &udpSocketLayer{conn: conn, dest: dest, tracker: tracker, stats: stats}
}

func (u *udpSocketLayer) SendWithOptions(ctx context.Context, payload []byte, opts SendOptions) error {
	u.stats.observeSend("udp")
	if u.dest == nil {
		return ErrNoDestination
	}

	log := logger.FromContext(ctx)
	if err := sendWithControlMessage(u.conn, u.dest, payload, opts); err != nil {
		log.ErrorContext(ctx, "sendmsg failed", "error", err, "dest", u.dest.String())
		return err
	}

	if opts.TrackForMs > 0 && u.tracker != nil {
		estimated := len(payload) + fixedOverheadBytes
		u.tracker.Track(u.dest, estimated, payload, opts, time.Now())
	}
	return nil
}
