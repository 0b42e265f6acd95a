// SPDX-License-Identifier: Apache-2.0

// Package app wires every core component into one runnable process, the
// same role the teacher's pkg/sparrow.Sparrow plays for its checks: it owns
// the static config, the runtime-config loader, the shared transport, the
// session registry and dispatcher, the admin API, and tracing, and
// multiplexes their lifecycles over one Run loop.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dt-netlab/pathcast/internal/icmplisten"
	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/internal/tracker"
	"github.com/dt-netlab/pathcast/pkg/api"
	"github.com/dt-netlab/pathcast/pkg/config"
	"github.com/dt-netlab/pathcast/pkg/dispatcher"
	"github.com/dt-netlab/pathcast/pkg/persist"
	"github.com/dt-netlab/pathcast/pkg/rtcsrv"
	"github.com/dt-netlab/pathcast/pkg/session"
	"github.com/dt-netlab/pathcast/pkg/telemetry"
)

const shutdownTimeout = 30 * time.Second

// maxInFlightProbes bounds the packet tracker's resident set (spec §7
// resource exhaustion: oldest-first spill past this size).
const maxInFlightProbes = 4096

// icmpSweepPeriod is how often the tracker drops probes that expired
// without a match.
const icmpSweepPeriod = time.Second

// App is the assembled process, mirroring the teacher's Sparrow struct.
type App struct {
	cfg      *config.Config
	telecfg  telemetry.Config
	registry *prometheus.Registry
	tp       *telemetry.Provider

	trk     *tracker.Tracker
	manager *session.Manager
	disp    *dispatcher.Dispatcher
	rtc     *rtcsrv.Server
	adminAPI api.API
	icmp    icmplisten.Listener
	loader  config.Loader

	cRuntime chan config.RuntimeConfig
	cErr     chan error
	cDone    chan struct{}

	runtimeMu     sync.RWMutex
	runtimeConfig config.RuntimeConfig

	shutOnce sync.Once
}

// New builds every component but starts nothing; call Run to start the
// process. sm/mr may be nil, in which case the no-op persistence
// collaborators are used (spec §6).
func New(ctx context.Context, cfg *config.Config, telecfg telemetry.Config, sm persist.SessionManager, mr persist.MetricsRecorder) (*App, error) {
	registry := prometheus.NewRegistry()

	trk := tracker.New(maxInFlightProbes)
	registry.MustRegister(trk.Collectors()...)

	manager := session.NewManager(sm, mr)
	disp := dispatcher.New(manager, trk, mr, dispatcher.DefaultConfig())

	rtc, err := rtcsrv.New(ctx, rtcsrv.Config{
		BindAddr:   cfg.ListenAddr,
		ICEServers: cfg.ICEServers,
	}, manager, trk, disp)
	if err != nil {
		return nil, fmt.Errorf("app: starting transport: %w", err)
	}
	registry.MustRegister(rtc.Stats().Collectors()...)

	icmpL, err := icmplisten.Open(ctx, rtc.SharedConn())
	if err != nil {
		_ = rtc.Close()
		return nil, fmt.Errorf("app: opening icmp listener: %w", err)
	}

	a := &App{
		cfg:      cfg,
		telecfg:  telecfg,
		registry: registry,
		tp:       telemetry.New(telecfg),
		trk:      trk,
		manager:  manager,
		disp:     disp,
		rtc:      rtc,
		icmp:     icmpL,
		cRuntime: make(chan config.RuntimeConfig, 1),
		cErr:     make(chan error, 1),
		cDone:    make(chan struct{}, 1),
	}
	manager.DurationForMagicKey = a.durationForMagicKey
	a.loader = config.NewLoader(cfg, a.cRuntime)
	a.adminAPI = api.New(api.Config{ListeningAddress: cfg.AdminAddr}, registry, sessionLister{manager})
	return a, nil
}

// durationForMagicKey resolves a magic key against the most recently loaded
// runtime config, falling back to pkg/session's built-in table (spec §6).
func (a *App) durationForMagicKey(magicKey string) time.Duration {
	a.runtimeMu.RLock()
	rc := a.runtimeConfig
	a.runtimeMu.RUnlock()
	if rc.Empty() {
		return session.DurationForMagicKey(magicKey)
	}
	return rc.DurationForMagicKey(magicKey)
}

// Run starts every subcomponent and blocks until ctx is cancelled or a
// component reports a non-recoverable error, mirroring the teacher's
// Sparrow.Run select loop over cRuntime/cErr/cDone.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := logger.NewContextWithLogger(ctx)
	defer cancel()
	log := logger.FromContext(ctx)

	if err := a.tp.Init(ctx, "dev"); err != nil {
		return fmt.Errorf("app: initializing tracing: %w", err)
	}

	go func() { a.cErr <- a.loader.Run(ctx) }()
	go func() {
		icmplisten.Dispatch(ctx, a.icmp, a.trk.AsMatcher(), a.manager)
		a.cErr <- nil
	}()
	go a.trk.RunExpirySweep(ctx, icmpSweepPeriod)
	go func() { a.cErr <- a.startAdminAPI(ctx) }()

	for {
		select {
		case rc := <-a.cRuntime:
			a.runtimeMu.Lock()
			a.runtimeConfig = rc
			a.runtimeMu.Unlock()
			a.disp.SetConfig(dispatcher.Config{
				TracerouteRounds: orDefault(rc.TracerouteRounds, dispatcher.DefaultConfig().TracerouteRounds),
				MtuRounds:        orDefault(rc.MtuRounds, dispatcher.DefaultConfig().MtuRounds),
				StaggerDelay:     dispatcher.DefaultConfig().StaggerDelay,
			})
			log.InfoContext(ctx, "runtime configuration reloaded", "traceroute_rounds", rc.TracerouteRounds, "mtu_rounds", rc.MtuRounds)
		case <-ctx.Done():
			a.shutdown(ctx)
		case err := <-a.cErr:
			if err != nil {
				log.ErrorContext(ctx, "non-recoverable component error", "error", err)
				a.shutdown(ctx)
			}
		case <-a.cDone:
			return ctx.Err()
		}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// offerRequest is the signaling hook's HTTP envelope. Real browser-facing
// signaling (SDP exchange over a websocket, ICE trickle, auth) is an
// external collaborator per spec §1; this is the minimal REST shim letting
// the binary be exercised end-to-end without one.
type offerRequest struct {
	ConnID   string                    `json:"conn_id,omitempty"`
	MagicKey string                    `json:"magic_key"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

type offerResponse struct {
	ConnID string                    `json:"conn_id"`
	Answer webrtc.SessionDescription `json:"answer"`
}

func (a *App) handleOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed offer request", http.StatusBadRequest)
		return
	}
	connID := req.ConnID
	if connID == "" {
		connID = uuid.NewString()
	}

	answer, err := a.rtc.OfferAnswer(logger.WithSession(ctx, connID, ""), connID, req.MagicKey, req.Offer)
	if err != nil {
		log.ErrorContext(ctx, "offer/answer negotiation failed", "conn_id", connID, "error", err)
		http.Error(w, "negotiation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(offerResponse{ConnID: connID, Answer: answer})
}

func (a *App) startAdminAPI(ctx context.Context) error {
	routes := []api.Route{
		{Path: "/v1/offer", Method: http.MethodPost, Handler: a.handleOffer},
	}
	if err := a.adminAPI.RegisterRoutes(ctx, routes...); err != nil {
		return fmt.Errorf("app: registering admin routes: %w", err)
	}
	return a.adminAPI.Run(ctx)
}

// shutdown gracefully stops every subcomponent, safe to call more than once.
func (a *App) shutdown(ctx context.Context) {
	log := logger.FromContext(ctx)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.shutOnce.Do(func() {
		log.InfoContext(ctx, "shutting down")
		var errs []error
		if err := a.adminAPI.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.loader.Shutdown(ctx)
		if err := a.icmp.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.rtc.Close(); err != nil {
			errs = append(errs, err)
		}
		for _, err := range errs {
			log.ErrorContext(ctx, "component shutdown error", "error", err)
		}
		a.cDone <- struct{}{}
	})
}

// sessionLister adapts pkg/session.Manager to pkg/api.SessionLister.
type sessionLister struct {
	m *session.Manager
}

func (l sessionLister) Sessions() []api.SessionView {
	sessions := l.m.Sessions()
	out := make([]api.SessionView, 0, len(sessions))
	for _, s := range sessions {
		peer := ""
		if addr := s.PeerAddr(); addr != nil {
			peer = addr.String()
		}
		out = append(out, api.SessionView{
			ConnID:              s.ConnID,
			SurveySessionID:     s.SurveySessionID,
			PeerAddress:         peer,
			TrafficActive:       s.TrafficActive(),
			ProbeStreamsActive:  s.ProbeStreamsActive(),
			MaxMeasuringSeconds: int(s.MaxMeasuringDuration().Seconds()),
		})
	}
	return out
}
