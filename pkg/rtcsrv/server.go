// SPDX-License-Identifier: Apache-2.0

package rtcsrv

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/dt-netlab/pathcast/internal/tracker"
	"github.com/dt-netlab/pathcast/pkg/dispatcher"
	"github.com/dt-netlab/pathcast/pkg/session"
)

// Config holds the knobs spec §6 exposes for the transport layer.
type Config struct {
	// BindAddr is the shared UDP socket's local address, e.g. "0.0.0.0:5000".
	BindAddr string
	// ICEServers lists STUN/TURN URLs offered to every peer connection.
	ICEServers []string
	// SCTPMaxPayload is the chunk size internal/sendpath's stream layer
	// fragments at when BypassSCTPFragmentation is not requested.
	SCTPMaxPayload int
}

// DefaultSCTPMaxPayload mirrors a conservative SCTP/DTLS/UDP path MTU.
const DefaultSCTPMaxPayload = 1200

// Server owns the shared UDP socket and every live peer connection built on
// top of it (spec §4.4 Contract, §5).
type Server struct {
	cfg     Config
	sock    *sharedSocket
	manager *session.Manager
	tracker *tracker.Tracker
	disp    *dispatcher.Dispatcher
	stats   *sendpath.Stats
}

// New binds the shared UDP socket and builds the pion API over it.
func New(ctx context.Context, cfg Config, manager *session.Manager, trk *tracker.Tracker, disp *dispatcher.Dispatcher) (*Server, error) {
	if cfg.SCTPMaxPayload <= 0 {
		cfg.SCTPMaxPayload = DefaultSCTPMaxPayload
	}
	sock, err := newSharedSocket(ctx, cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		sock:    sock,
		manager: manager,
		tracker: trk,
		disp:    disp,
		stats:   sendpath.NewStats(),
	}, nil
}

// SharedConn returns the shared UDP socket, used by internal/icmplisten to
// read ICMP errors correlated against the same 5-tuple outbound probes use.
func (srv *Server) SharedConn() net.PacketConn { return srv.sock.conn }

// Stats returns the send-path instrumentation collectors for the admin API's
// Prometheus registry.
func (srv *Server) Stats() *sendpath.Stats { return srv.stats }

func (srv *Server) iceServers() []webrtc.ICEServer {
	if len(srv.cfg.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: srv.cfg.ICEServers}}
}

// OfferAnswer is the signaling hook (spec §1 "consumed via defined hooks
// only"): given connID, magicKey and the browser's offer, it builds a peer
// connection, creates the four named data channels, and returns the answer.
// The actual HTTP/WebSocket signaling transport is an external collaborator
// that calls this.
func (srv *Server) OfferAnswer(ctx context.Context, connID, magicKey string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	log := logger.FromContext(ctx)

	pc, err := srv.sock.api.NewPeerConnection(webrtc.Configuration{ICEServers: srv.iceServers()})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtcsrv: creating peer connection: %w", err)
	}

	channels, err := createDataChannels(pc)
	if err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, err
	}

	var sess atomic.Pointer[session.Session]
	srv.wireDataChannels(ctx, channels, &sess)
	srv.wireConnectionState(ctx, pc, connID, magicKey, channels, &sess)

	if err := pc.SetRemoteDescription(offer); err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("rtcsrv: set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("rtcsrv: create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("rtcsrv: set local description: %w", err)
	}
	<-gatherComplete

	log.InfoContext(ctx, "peer connection negotiated", "conn_id", connID)
	return *pc.LocalDescription(), nil
}

// wireDataChannels hooks every channel's OnMessage to the dispatcher, once a
// session exists to dispatch against. A message arriving before Connected
// fires (possible but unlikely: data channels can open slightly ahead of the
// aggregate connection state) is logged and dropped rather than risking a
// nil-session panic.
func (srv *Server) wireDataChannels(ctx context.Context, channels map[string]*webrtc.DataChannel, sess *atomic.Pointer[session.Session]) {
	log := logger.FromContext(ctx)

	route := func(ch dispatcher.Channel, label string) func(webrtc.DataChannelMessage) {
		return func(msg webrtc.DataChannelMessage) {
			s := sess.Load()
			if s == nil {
				log.WarnContext(ctx, "data channel message before session ready, dropped", "channel", label)
				return
			}
			msgCtx := logger.WithSession(ctx, s.ConnID, s.SurveySessionID)
			if label == session.ChannelProbe {
				srv.disp.ReceiveProbe(msgCtx, s, msg.Data)
				return
			}
			srv.disp.Handle(msgCtx, s, msg.Data, ch)
		}
	}

	channels[session.ChannelControl].OnMessage(route(dispatcher.ChannelControl, session.ChannelControl))
	channels[session.ChannelProbe].OnMessage(route(dispatcher.ChannelProbe, session.ChannelProbe))
	channels[session.ChannelTestProbe].OnMessage(route(dispatcher.ChannelTestProbe, session.ChannelTestProbe))
	channels[session.ChannelBulk].OnMessage(route(dispatcher.ChannelBulk, session.ChannelBulk))
}

// wireConnectionState implements spec §4.4 lifecycle: Connected resolves the
// peer address from ICE stats and registers the session; Disconnected/
// Failed/Closed tear it down.
func (srv *Server) wireConnectionState(ctx context.Context, pc *webrtc.PeerConnection, connID, magicKey string, channels map[string]*webrtc.DataChannel, sess *atomic.Pointer[session.Session]) {
	log := logger.FromContext(ctx)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			peerAddr := resolvePeerAddr(pc)
			dc := session.DataChannels{
				Probe:     srv.senderFor(connID, peerAddr),
				Bulk:      srv.senderFor(connID, peerAddr),
				Control:   srv.senderFor(connID, peerAddr),
				TestProbe: srv.senderFor(connID, peerAddr),
			}
			s := srv.manager.NewSession(ctx, connID, "", magicKey, dc)
			srv.manager.OnConnected(s, peerAddr)
			sess.Store(s)
			log.InfoContext(ctx, "session connected", "conn_id", connID, "peer_addr", addrString(peerAddr))
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			srv.manager.Unregister(ctx, connID)
			srv.disp.Forget(connID)
			for _, dc := range channels {
				_ = dc.Close()
			}
			_ = pc.Close()
		}
	})
}

// senderFor builds one session's option-carrying send chain over the shared
// socket (spec §5): the bottom layer owns dest, the shared net.PacketConn is
// multiplexed across every session by pion's ICE UDP mux.
func (srv *Server) senderFor(connID string, dest net.Addr) sendpath.Sender {
	udp := sendpath.NewUDPSocketLayer(srv.sock.conn, dest, session.NewConnTracker(connID, srv.tracker), srv.stats)
	return sendpath.Build(udp, srv.stats, srv.cfg.SCTPMaxPayload)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Close shuts down the shared socket. Individual peer connections are
// closed by wireConnectionState as they disconnect.
func (srv *Server) Close() error {
	return srv.sock.Close()
}
