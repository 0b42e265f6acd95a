// SPDX-License-Identifier: Apache-2.0

// Package dispatcher implements the control-message dispatcher (spec
// §4.8): it decodes the tagged JSON arriving on a session's control (and,
// for the echo variant, testprobe) channel and routes each message to the
// orchestrator or session-state mutation it names. Grounded on the
// teacher's checks.Runner dispatch-by-config pattern, generalized from
// "run the check named by this config entry" to "run the action named by
// this message's type field."
package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/dt-netlab/pathcast/internal/tracker"
	"github.com/dt-netlab/pathcast/pkg/mtu"
	"github.com/dt-netlab/pathcast/pkg/persist"
	"github.com/dt-netlab/pathcast/pkg/probestream"
	"github.com/dt-netlab/pathcast/pkg/session"
	"github.com/dt-netlab/pathcast/pkg/traceroute"
	"github.com/dt-netlab/pathcast/pkg/wire"
)

// Channel names a session's four logical data channels, so Handle can apply
// the one dispatch rule that depends on which channel a frame arrived on
// (test_probe_message_echo always replies on TestProbe, regardless of
// where the request came in).
type Channel int

const (
	ChannelControl Channel = iota
	ChannelProbe
	ChannelTestProbe
	ChannelBulk
)

// Config holds the round counts and stagger delay spec §6 exposes for the
// traceroute and MTU orchestrators' per-survey repetition.
type Config struct {
	TracerouteRounds int
	MtuRounds        int
	StaggerDelay     time.Duration
}

// DefaultConfig mirrors the built-in defaults spec §6 names.
func DefaultConfig() Config {
	return Config{
		TracerouteRounds: traceroute.DefaultRounds,
		MtuRounds:        mtu.DefaultRounds,
		StaggerDelay:     traceroute.StaggerDelay,
	}
}

// Dispatcher routes control-channel messages for every live session. One
// Dispatcher is shared across all sessions multiplexed on the shared UDP
// socket, the same way internal/tracker.Tracker is shared (spec §5).
type Dispatcher struct {
	manager *session.Manager
	tracker *tracker.Tracker
	mr      persist.MetricsRecorder
	cfg     Config

	mu          sync.Mutex
	probeRuns   map[string]*probeRun     // conn_id -> running probe-stream engine
	traceRuns   map[string]context.CancelFunc // conn_id -> cancel for its active traceroute rounds
	surveyOrder map[string]int           // survey_session_id -> connections staggered so far
}

type probeRun struct {
	engine  *probestream.Engine
	cancel  context.CancelFunc
	running bool
}

// SetConfig swaps in a freshly (re)loaded round-count/stagger configuration,
// so pkg/config's runtime-config loader can hot-reload the traceroute
// orchestrator's repetition without tearing down any live session, mirroring
// the teacher's ChecksController.Reconcile applying a new runtime.Config in
// place.
func (d *Dispatcher) SetConfig(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Dispatcher) config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// New builds a dispatcher over manager's session registry and the shared
// packet tracker. mr may be nil (spec §6 "if unconfigured, skipped").
func New(manager *session.Manager, trk *tracker.Tracker, mr persist.MetricsRecorder, cfg Config) *Dispatcher {
	if mr == nil {
		mr = persist.NoopMetricsRecorder{}
	}
	return &Dispatcher{
		manager:     manager,
		tracker:     trk,
		mr:          mr,
		cfg:         cfg,
		probeRuns:   make(map[string]*probeRun),
		traceRuns:   make(map[string]context.CancelFunc),
		surveyOrder: make(map[string]int),
	}
}

// Handle decodes one message and routes it by its "type" field (spec §4.8).
// A malformed message is logged and dropped; the session is never torn
// down for it (spec §7). ch identifies which channel the frame arrived on.
func (d *Dispatcher) Handle(ctx context.Context, s *session.Session, raw []byte, ch Channel) {
	log := logger.FromContext(ctx)

	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.ErrorContext(ctx, "malformed control message", "conn_id", s.ConnID, "error", err)
		return
	}
	if env.ConnID == "" {
		log.ErrorContext(ctx, "control message missing conn_id, rejected", "type", env.Type)
		return
	}

	switch env.Type {
	case wire.TypeStartSurveySession:
		d.handleStartSurveySession(ctx, s, raw, env)
	case wire.TypeStartTraceroute:
		d.handleStartTraceroute(ctx, s, env)
	case wire.TypeStartMtuTraceroute:
		d.handleStartMtuTraceroute(ctx, s, raw, env)
	case wire.TypeStartProbeStreams:
		d.handleStartProbeStreams(ctx, s, raw)
	case wire.TypeStopProbeStreams:
		s.StopProbeStreams()
	case wire.TypeStopTraceroute:
		d.stopTraceroute(s.ConnID)
	case wire.TypeStopServerTraffic:
		s.SetTrafficActive(false)
	case wire.TypeGetMeasuringTime:
		d.handleGetMeasuringTime(ctx, s, env)
	case wire.TypeTestProbeEcho:
		d.handleTestProbeEcho(ctx, s, raw)
	case wire.TypeProbeStats:
		// External collaborator hook (spec §4.8): client-side statistics
		// are an analyst concern out of this core's scope; nothing to do.
	default:
		log.ErrorContext(ctx, "unknown control message type, rejected", "conn_id", s.ConnID, "type", env.Type)
	}
}

// ReceiveProbe feeds an inbound probe/measurement packet from the probe
// channel to s's running probe-stream engine, if any (spec §4.7 receiver).
func (d *Dispatcher) ReceiveProbe(ctx context.Context, s *session.Session, raw []byte) {
	d.mu.Lock()
	pr, ok := d.probeRuns[s.ConnID]
	d.mu.Unlock()
	if !ok {
		return
	}
	pr.engine.Receive(ctx, raw)
}

func requireSurveySessionID(ctx context.Context, env wire.Envelope) bool {
	if env.SurveySessionID == "" {
		logger.FromContext(ctx).ErrorContext(ctx, "control message missing survey_session_id, rejected", "conn_id", env.ConnID, "type", env.Type)
		return false
	}
	return true
}

func (d *Dispatcher) handleStartSurveySession(ctx context.Context, s *session.Session, raw []byte, env wire.Envelope) {
	log := logger.FromContext(ctx)
	if !requireSurveySessionID(ctx, env) {
		return
	}
	var msg wire.StartSurveySession
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.ErrorContext(ctx, "malformed start_survey_session", "conn_id", s.ConnID, "error", err)
		return
	}

	if err := d.manager.CreateSurveyRecord(ctx, s, msg.SurveySessionID, msg.MagicKey); err != nil {
		// create_session failing is logged by the manager; the survey
		// mapping itself is still registered, so we still reply ready.
		_ = err
	}

	reply := wire.ServerSideReady{Envelope: wire.Envelope{
		Type: wire.TypeServerSideReady, ConnID: s.ConnID, SurveySessionID: msg.SurveySessionID,
	}}
	d.publishControl(ctx, s, reply)
}

func (d *Dispatcher) handleStartTraceroute(ctx context.Context, s *session.Session, env wire.Envelope) {
	log := logger.FromContext(ctx)
	if !requireSurveySessionID(ctx, env) {
		return
	}

	d.mu.Lock()
	if cancel, ok := d.traceRuns[s.ConnID]; ok {
		cancel()
	}
	stagger := d.surveyOrder[env.SurveySessionID]
	d.surveyOrder[env.SurveySessionID] = stagger + 1
	runCtx, cancel := context.WithCancel(ctx)
	d.traceRuns[s.ConnID] = cancel
	d.mu.Unlock()

	cfg := d.config()
	delay := time.Duration(stagger) * cfg.StaggerDelay

	go func() {
		defer cancel()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-runCtx.Done():
				return
			case <-s.Done():
				return
			}
		}
		if err := traceroute.RunRounds(runCtx, s, d.tracker, cfg.TracerouteRounds); err != nil && runCtx.Err() == nil {
			logger.FromContext(runCtx).ErrorContext(runCtx, "traceroute rounds failed", "conn_id", s.ConnID, "error", err)
		}
	}()
}

func (d *Dispatcher) stopTraceroute(connID string) {
	d.mu.Lock()
	cancel, ok := d.traceRuns[connID]
	if ok {
		delete(d.traceRuns, connID)
	}
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

func (d *Dispatcher) handleStartMtuTraceroute(ctx context.Context, s *session.Session, raw []byte, env wire.Envelope) {
	log := logger.FromContext(ctx)
	if !requireSurveySessionID(ctx, env) {
		return
	}
	var msg wire.StartMtuTraceroute
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.ErrorContext(ctx, "malformed start_mtu_traceroute", "conn_id", s.ConnID, "error", err)
		return
	}

	cfg := d.config()
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		if err := mtu.RunRounds(runCtx, s, d.tracker, msg.PacketSize, msg.PathTTL, msg.CollectTimeoutMs, cfg.MtuRounds); err != nil && runCtx.Err() == nil {
			logger.FromContext(runCtx).ErrorContext(runCtx, "mtu round failed", "conn_id", s.ConnID, "error", err)
		}
	}()
}

func (d *Dispatcher) handleStartProbeStreams(ctx context.Context, s *session.Session, raw []byte) {
	var msg wire.StartProbeStreams
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "malformed start_probe_streams", "conn_id", s.ConnID, "error", err)
	}
	s.SetBulkEnabled(msg.BulkEnabled)
	s.StartProbeStreams()

	d.mu.Lock()
	defer d.mu.Unlock()

	pr, ok := d.probeRuns[s.ConnID]
	if ok && pr.running {
		// Already running: StartProbeStreams above reset probe_started_at,
		// restarting the clocks in place (spec §8 idempotence law) without
		// tearing down the live engine's sequence/baseline state.
		return
	}

	if !ok {
		pr = &probeRun{engine: probestream.New(s, d.mr)}
		d.probeRuns[s.ConnID] = pr
	}
	runCtx, cancel := context.WithCancel(ctx)
	pr.cancel = cancel
	pr.running = true

	go func() {
		pr.engine.Run(runCtx)
		d.mu.Lock()
		pr.running = false
		d.mu.Unlock()
	}()
}

func (d *Dispatcher) handleGetMeasuringTime(ctx context.Context, s *session.Session, env wire.Envelope) {
	reply := wire.MeasuringTimeResponse{
		Envelope: wire.Envelope{
			Type: wire.TypeMeasuringTimeResp, ConnID: s.ConnID, SurveySessionID: env.SurveySessionID,
		},
		Seconds: int(s.MaxMeasuringDuration().Seconds()),
	}
	d.publishControl(ctx, s, reply)
}

func (d *Dispatcher) handleTestProbeEcho(ctx context.Context, s *session.Session, raw []byte) {
	log := logger.FromContext(ctx)
	if err := s.Channels.TestProbe.SendWithOptions(ctx, raw, sendpath.SendOptions{}); err != nil {
		log.ErrorContext(ctx, "test_probe_message_echo reply failed", "conn_id", s.ConnID, "error", err)
	}
}

func (d *Dispatcher) publishControl(ctx context.Context, s *session.Session, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.Channels.Control.SendWithOptions(ctx, raw, sendpath.SendOptions{}); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "control reply publish failed", "conn_id", s.ConnID, "error", err)
	}
}

// Forget releases any per-session dispatcher state (a running probe-stream
// engine, an active traceroute round) when a session tears down. Safe to
// call more than once.
func (d *Dispatcher) Forget(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pr, ok := d.probeRuns[connID]; ok {
		if pr.cancel != nil {
			pr.cancel()
		}
		delete(d.probeRuns, connID)
	}
	if cancel, ok := d.traceRuns[connID]; ok {
		cancel()
		delete(d.traceRuns, connID)
	}
}
