// SPDX-License-Identifier: Apache-2.0

package rtcsrv

import (
	"context"
	"fmt"
	"net"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

// sharedSocket opens the one UDP socket every peer connection's ICE agent
// multiplexes over (spec §5), and builds the pion API that uses it. The same
// net.PacketConn is later handed to internal/sendpath.NewUDPSocketLayer so
// option-carrying probes share the exact 5-tuple pion negotiated.
type sharedSocket struct {
	conn net.PacketConn
	mux  ice.UDPMux
	api  *webrtc.API
}

func newSharedSocket(ctx context.Context, bindAddr string) (*sharedSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("rtcsrv: resolving bind address %q: %w", bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("rtcsrv: binding shared udp socket %q: %w", bindAddr, err)
	}

	mux := ice.NewUDPMuxDefault(ice.UDPMuxParams{
		Logger:  newLoggerFactory(ctx).NewLogger("udpmux"),
		UDPConn: conn,
	})

	se := webrtc.SettingEngine{}
	se.SetICEUDPMux(mux)
	se.LoggerFactory = newLoggerFactory(ctx)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	return &sharedSocket{conn: conn, mux: mux, api: api}, nil
}

func (s *sharedSocket) Close() error {
	_ = s.mux.Close()
	return s.conn.Close()
}
