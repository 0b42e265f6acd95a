// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net"
	"time"

	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/dt-netlab/pathcast/internal/tracker"
)

// ConnTracker binds the shared packet tracker to one session's conn_id, so
// that probes sent through that session's chain drain back to the
// orchestrator that sent them. Satisfies internal/sendpath.Tracker.
type ConnTracker struct {
	ConnID  string
	Tracker *tracker.Tracker
}

// NewConnTracker builds the adapter pkg/rtcsrv wires into each session's
// UDP socket layer (the bottom of the send-path chain).
func NewConnTracker(connID string, t *tracker.Tracker) ConnTracker {
	return ConnTracker{ConnID: connID, Tracker: t}
}

var _ sendpath.Tracker = ConnTracker{}

func (c ConnTracker) Track(dest net.Addr, udpLength int, payload []byte, opts sendpath.SendOptions, sentAt time.Time) {
	c.Tracker.TrackFor(context.Background(), c.ConnID, dest, udpLength, payload, opts, sentAt)
}
