// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/pkg/persist"
)

// DefaultMeasuringSeconds and DemoMeasuringSeconds are the built-in
// magic-key durations spec §6 requires even with no runtime config loaded:
// default 3600s, special-cased 120s for the literal key "DEMO".
const (
	DefaultMeasuringSeconds = 3600
	DemoMagicKey            = "DEMO"
	DemoMeasuringSeconds    = 120
)

// DurationForMagicKey is the built-in resolver; pkg/config's runtime table
// overrides it per tenant but falls back to these values for unknown keys.
func DurationForMagicKey(magicKey string) time.Duration {
	if magicKey == DemoMagicKey {
		return DemoMeasuringSeconds * time.Second
	}
	return DefaultMeasuringSeconds * time.Second
}

// Manager owns the set of live sessions, playing the role of the teacher's
// ChecksController: register/unregister, fan results into persistence, and
// resolve ICMP dispatch back to the owning session (spec §4.4, §6).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // by conn_id
	byPeer   map[string]*Session // by peer address string

	persist persist.SessionManager
	metrics persist.MetricsRecorder

	// DurationForMagicKey resolves a magic key to its measuring-time
	// ceiling; overridable so pkg/config's runtime table can be wired in
	// without this package depending on it.
	DurationForMagicKey func(magicKey string) time.Duration
}

// NewManager builds an empty session registry. A nil persist/metrics
// collaborator is replaced with the no-op implementation, per spec §6
// "if unconfigured, these calls are skipped".
func NewManager(sm persist.SessionManager, mr persist.MetricsRecorder) *Manager {
	if sm == nil {
		sm = persist.NoopSessionManager{}
	}
	if mr == nil {
		mr = persist.NoopMetricsRecorder{}
	}
	return &Manager{
		sessions:            make(map[string]*Session),
		byPeer:              make(map[string]*Session),
		persist:             sm,
		metrics:             mr,
		DurationForMagicKey: DurationForMagicKey,
	}
}

// Persist returns the configured session-lifecycle persistence collaborator
// (create_session, update_session_timestamp, update_session_files);
// per-second snapshots go through Metrics instead.
func (m *Manager) Persist() persist.SessionManager { return m.persist }

// Metrics returns the configured metrics collaborator.
func (m *Manager) Metrics() persist.MetricsRecorder { return m.metrics }

// NewSession constructs a Session whose max_measuring_duration is derived
// from magicKey via m.DurationForMagicKey (spec §3, §6), and registers it.
// survey_session_id is typically still empty here: it is usually assigned
// later by CreateSurveyRecord once a start_survey_session control message
// arrives (spec §4.4 step 1 fires on the Connected transition, before the
// control channel necessarily carries anything).
func (m *Manager) NewSession(ctx context.Context, connID, surveySessionID, magicKey string, channels DataChannels) *Session {
	s := New(connID, surveySessionID, magicKey, channels, m.DurationForMagicKey(magicKey))

	m.mu.Lock()
	m.sessions[connID] = s
	m.mu.Unlock()

	logger.FromContext(ctx).InfoContext(ctx, "session registered", "conn_id", connID)
	return s
}

// CreateSurveyRecord assigns s's survey_session_id and, if a magic key
// accompanies the request, refreshes its measuring-duration ceiling, then
// creates the persistence record (spec §4.8 start_survey_session: "Register
// mapping; create persistence record if storage is configured").
func (m *Manager) CreateSurveyRecord(ctx context.Context, s *Session, surveySessionID, magicKey string) error {
	s.SetSurveySessionID(surveySessionID)
	if magicKey != "" {
		s.SetMaxMeasuringDuration(m.DurationForMagicKey(magicKey))
	}
	if err := m.persist.CreateSession(ctx, surveySessionID, s.ConnID, magicKey); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "persist create_session failed", "conn_id", s.ConnID, "error", err)
		return err
	}
	return nil
}

// Get looks up a session by conn_id.
func (m *Manager) Get(connID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connID]
	return s, ok
}

// OnConnected resolves and stores peerAddr and indexes the session by it,
// so NoteICMPErrorFromPeer can find it later (spec §4.4 lifecycle step 1).
func (m *Manager) OnConnected(s *Session, peerAddr net.Addr) {
	s.MarkConnected(peerAddr)
	if peerAddr == nil {
		return
	}
	m.mu.Lock()
	m.byPeer[peerAddr.String()] = s
	m.mu.Unlock()
}

// Unregister stops the session and removes it from both indexes. Safe to
// call more than once.
func (m *Manager) Unregister(ctx context.Context, connID string) {
	m.mu.Lock()
	s, ok := m.sessions[connID]
	if ok {
		delete(m.sessions, connID)
		if s.PeerAddr() != nil {
			delete(m.byPeer, s.PeerAddr().String())
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Stop()
	logger.FromContext(ctx).InfoContext(ctx, "session unregistered", "conn_id", connID)
}

// NoteICMPErrorFromPeer implements icmplisten.SessionIndex: an unmatched
// ICMP error is counted against the session whose resolved peer address it
// came from, and five within one second trigger that session's teardown
// (spec §4.2, §8 scenario 6).
func (m *Manager) NoteICMPErrorFromPeer(addr net.Addr) {
	if addr == nil {
		return
	}
	m.mu.RLock()
	s, ok := m.byPeer[addr.String()]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if s.NoteICMPError() {
		go m.Unregister(context.Background(), s.ConnID)
	}
}

// Sessions returns a snapshot slice of all currently registered sessions,
// for the admin API's read-only listing.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
