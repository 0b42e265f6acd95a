// SPDX-License-Identifier: Apache-2.0

package session

import (
	"net"
	"sync"
	"time"
)

// icmpErrorThreshold and icmpErrorWindow implement spec §4.2's dispatch
// rule: five unmatched ICMP errors against a session's peer address within
// a 1-second window trigger that session's cleanup.
const (
	icmpErrorThreshold = 5
	icmpErrorWindow    = time.Second
)

// Session holds all per-peer state (spec §3 Session, §4.4 lifecycle).
// Exported fields are set at construction, except SurveySessionID, which
// SetSurveySessionID may assign later; mutable state is guarded by mu.
type Session struct {
	ConnID          string
	SurveySessionID string
	MagicKey        string
	Channels        DataChannels

	mu                   sync.RWMutex
	peerAddr             net.Addr
	trafficActive        bool
	probeStreamsActive   bool
	bulkEnabled          bool
	probeStartedAt       time.Time
	maxMeasuringDuration time.Duration
	createdAt            time.Time

	icmpMu         sync.Mutex
	icmpErrorTimes []time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a session in its pre-connected state. MarkConnected must be
// called once the peer-connection state reaches Connected before any
// orchestrator round runs, per spec §4.4 lifecycle step 1.
func New(connID, surveySessionID, magicKey string, channels DataChannels, maxMeasuringDuration time.Duration) *Session {
	return &Session{
		ConnID:               connID,
		SurveySessionID:      surveySessionID,
		MagicKey:             magicKey,
		Channels:             channels,
		maxMeasuringDuration: maxMeasuringDuration,
		stopCh:               make(chan struct{}),
	}
}

// MarkConnected resolves and stores the peer address, per spec §9's
// resolution of the historical peer_address bug: done on the Connected
// state transition, never lazily on a stats poll.
func (s *Session) MarkConnected(peerAddr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerAddr = peerAddr
	s.trafficActive = true
	s.createdAt = time.Now()
}

// SetSurveySessionID assigns the survey session a start_survey_session
// control message registers (spec §4.8); SurveySessionID is empty until
// then, since it is optional and the peer connection can reach Connected
// before the client opens its control channel.
func (s *Session) SetSurveySessionID(surveySessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SurveySessionID = surveySessionID
}

// PeerAddr returns the resolved peer address, or nil before MarkConnected.
func (s *Session) PeerAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerAddr
}

// TrafficActive reports whether the session still accepts orchestrator work.
func (s *Session) TrafficActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trafficActive
}

// ProbeStreamsActive reports whether the probe-stream engine should be
// running; consulted by the sender loop and reporter every tick (spec §4.7
// stop semantics).
func (s *Session) ProbeStreamsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probeStreamsActive && !s.probeDeadlineExceededLocked()
}

// StartProbeStreams flips probe_streams_active on and resets
// probe_started_at to now. A StartProbeStreams arriving while already
// active restarts the clock, satisfying the idempotence law in spec §8.
func (s *Session) StartProbeStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeStreamsActive = true
	s.probeStartedAt = time.Now()
}

// StopProbeStreams flips probe_streams_active off; two consecutive calls
// are idempotent (spec §8). The bulk generator is tied to the same
// lifecycle (SPEC addition: "gated by a bulk_enabled control flag"), so it
// stops alongside the probe streams it rides with.
func (s *Session) StopProbeStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeStreamsActive = false
	s.bulkEnabled = false
}

// SetBulkEnabled toggles the optional bulk-channel throughput generator,
// set from start_probe_streams' bulk_enabled field.
func (s *Session) SetBulkEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkEnabled = enabled
}

// BulkEnabled reports whether the bulk throughput generator should be
// running.
func (s *Session) BulkEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bulkEnabled
}

// SetTrafficActive flips traffic_active, used by stop_server_traffic
// (spec §4.8) without the full teardown Stop performs.
func (s *Session) SetTrafficActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trafficActive = active
}

// SetMaxMeasuringDuration updates the session's measuring-time ceiling,
// used once start_survey_session resolves the magic key (spec §4.8).
func (s *Session) SetMaxMeasuringDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxMeasuringDuration = d
}

// MaxMeasuringDuration returns the session's configured ceiling, derived
// from its magic key at construction time and replaced by any later
// SetMaxMeasuringDuration call.
func (s *Session) MaxMeasuringDuration() time.Duration {
	return s.maxMeasuringDuration
}

func (s *Session) probeDeadlineExceededLocked() bool {
	if s.probeStartedAt.IsZero() {
		return false
	}
	return time.Since(s.probeStartedAt) > s.maxMeasuringDuration
}

// ProbeDeadlineExceeded reports whether probe_started_at plus the session's
// max_measuring_duration has passed, forcing probe_streams_active to false
// (spec §3 invariant).
func (s *Session) ProbeDeadlineExceeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probeDeadlineExceededLocked()
}

// NoteICMPError records an unmatched ICMP error against this session's peer
// address and reports whether the five-within-one-second threshold has now
// been reached (spec §4.2, §8 scenario 6).
func (s *Session) NoteICMPError() bool {
	s.icmpMu.Lock()
	defer s.icmpMu.Unlock()

	now := time.Now()
	cutoff := now.Add(-icmpErrorWindow)
	kept := s.icmpErrorTimes[:0]
	for _, t := range s.icmpErrorTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.icmpErrorTimes = kept

	return len(kept) >= icmpErrorThreshold
}

// Stop tears the session down: flips both active flags false and closes
// Done, so pending loops observe it within one tick (spec §4.4 lifecycle
// step 3). Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.trafficActive = false
		s.probeStreamsActive = false
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// Done returns a channel closed when the session is stopped, for loops to
// select on alongside their pacing ticker.
func (s *Session) Done() <-chan struct{} {
	return s.stopCh
}
