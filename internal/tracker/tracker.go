// SPDX-License-Identifier: Apache-2.0

// Package tracker implements the packet tracker (spec §4.3): the in-flight
// probe index keyed by (destination socket address, UDP length), matched
// against asynchronously received ICMP errors.
package tracker

import (
	"container/list"
	"context"
	"net"
	"sync"
	"time"

	"github.com/dt-netlab/pathcast/internal/icmplisten"
	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/prometheus/client_golang/prometheus"
)

// Key is the correlation key ICMP's truncated payload still carries in full:
// the destination the probe was sent to, and the UDP length field quoted in
// the first 8 bytes of the original datagram.
type Key struct {
	Dest      string
	UDPLength int
}

func keyFor(dest net.Addr, udpLength int) Key {
	return Key{Dest: dest.String(), UDPLength: udpLength}
}

// Probe is a sent probe retained until matched by an ICMP error or expired.
type Probe struct {
	ConnID     string
	Payload    []byte
	SentAt     time.Time
	Options    sendpath.SendOptions
	Deadline   time.Time
}

// Event is emitted when an ICMP error matches a tracked probe (spec §3
// TrackedPacketEvent).
type Event struct {
	ConnID      string
	ICMPSource  net.Addr
	Payload     []byte
	SentAt      time.Time
	ReceivedAt  time.Time
	RTT         time.Duration
	Options     sendpath.SendOptions
	MTU         *int
	ICMPType    uint8
	ICMPCode    uint8
}

type entry struct {
	key      Key
	probe    Probe
	element  *list.Element
}

// Tracker indexes in-flight tracked probes and matches ICMP errors against
// them. A single Tracker instance is shared across all sessions multiplexed
// on the shared UDP socket (spec §5).
type Tracker struct {
	mu       sync.Mutex
	byKey    map[Key]*entry
	expiry   *list.List // oldest-first, for both the sweep and spill-under-pressure policy
	events   map[string][]Event // pending, per conn_id, drained non-blockingly
	maxSize  int

	matched  *prometheus.CounterVec
	expired  *prometheus.CounterVec
	spilled  prometheus.Counter
}

// DefaultMaxInFlight bounds the tracker so that a stuck drain loop cannot
// grow it without bound; spec §7 calls for oldest-first eviction under
// resource exhaustion.
const DefaultMaxInFlight = 100_000

// New builds an empty tracker. maxInFlight<=0 uses DefaultMaxInFlight.
func New(maxInFlight int) *Tracker {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Tracker{
		byKey:   make(map[Key]*entry),
		expiry:  list.New(),
		events:  make(map[string][]Event),
		maxSize: maxInFlight,
		matched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pathcast_tracker_matched_total",
			Help: "ICMP errors matched to a tracked probe.",
		}, []string{"conn_id"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pathcast_tracker_expired_total",
			Help: "Tracked probes removed by the expiry sweep without a match.",
		}, []string{"conn_id"}),
		spilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathcast_tracker_spilled_total",
			Help: "Tracked probes evicted oldest-first because the tracker was full.",
		}),
	}
}

// Collectors returns the collectors to register on the admin API's registry.
func (t *Tracker) Collectors() []prometheus.Collector {
	return []prometheus.Collector{t.matched, t.expired, t.spilled}
}

// Track registers a sent probe under its correlation key, satisfying the
// [sendpath.Tracker] interface the UDP socket layer depends on.
func (t *Tracker) Track(dest net.Addr, udpLength int, payload []byte, opts sendpath.SendOptions, sentAt time.Time) {
	t.TrackFor(context.Background(), "", dest, udpLength, payload, opts, sentAt)
}

// TrackFor is the richer entry point orchestrators use directly, carrying
// the conn_id so events can be drained per-connection.
func (t *Tracker) TrackFor(ctx context.Context, connID string, dest net.Addr, udpLength int, payload []byte, opts sendpath.SendOptions, sentAt time.Time) {
	key := keyFor(dest, udpLength)
	deadline := sentAt.Add(time.Duration(opts.TrackForMs) * time.Millisecond)

	e := &entry{
		key: key,
		probe: Probe{
			ConnID:   connID,
			Payload:  append([]byte(nil), payload...),
			SentAt:   sentAt,
			Options:  opts,
			Deadline: deadline,
		},
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.byKey[key]; ok {
		// Invariant (spec §3): keys are unique across in-flight probes of a
		// session within track_for_ms. A collision means the orchestrator's
		// size-separation scheme was violated upstream; the newer probe wins.
		t.expiry.Remove(old.element)
	}

	if len(t.byKey) >= t.maxSize {
		t.evictOldest()
	}

	e.element = t.expiry.PushBack(e)
	t.byKey[key] = e

	log := logger.FromContext(ctx)
	log.DebugContext(ctx, "tracked probe registered", "conn_id", connID, "dest", key.Dest, "udp_length", udpLength, "deadline", deadline)
}

// evictOldest drops the longest-lived entry, per the oldest-first spill
// policy for resource exhaustion (spec §7). Caller must hold t.mu.
func (t *Tracker) evictOldest() {
	front := t.expiry.Front()
	if front == nil {
		return
	}
	old := front.Value.(*entry)
	t.expiry.Remove(front)
	delete(t.byKey, old.key)
	t.spilled.Inc()
}

// MatchICMP looks up a parsed ICMP error by (embedded_dest, udp_length); on
// a hit it removes the entry and returns the event carrying the retained
// cleartext payload. First-match-wins, per spec §9: a second ICMP error
// referencing an already-matched key finds nothing.
func (t *Tracker) MatchICMP(p icmplisten.ParsedIcmpError) (Event, bool) {
	key := keyFor(p.EmbeddedDest, p.UDPLength)

	t.mu.Lock()
	e, ok := t.byKey[key]
	if ok {
		delete(t.byKey, key)
		t.expiry.Remove(e.element)
	}
	t.mu.Unlock()

	if !ok {
		return Event{}, false
	}

	ev := Event{
		ConnID:     e.probe.ConnID,
		ICMPSource: p.SourceAddr,
		Payload:    e.probe.Payload,
		SentAt:     e.probe.SentAt,
		ReceivedAt: p.ReceivedAt,
		RTT:        p.ReceivedAt.Sub(e.probe.SentAt),
		Options:    e.probe.Options,
		MTU:        p.MTU,
		ICMPType:   p.ICMPType,
		ICMPCode:   p.ICMPCode,
	}

	t.mu.Lock()
	t.events[ev.ConnID] = append(t.events[ev.ConnID], ev)
	t.mu.Unlock()

	t.matched.WithLabelValues(ev.ConnID).Inc()
	return ev, true
}

// DrainEventsFor performs a non-blocking fetch of all events queued for a
// connection, clearing the queue.
func (t *Tracker) DrainEventsFor(connID string) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	evs := t.events[connID]
	delete(t.events, connID)
	return evs
}

// RunExpirySweep removes entries past their deadline without a match. It
// blocks until ctx is cancelled, intended to run as one background task for
// the lifetime of the process.
func (t *Tracker) RunExpirySweep(ctx context.Context, period time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := t.sweepOnce(time.Now())
			if n > 0 {
				log.DebugContext(ctx, "tracker expiry sweep removed stale probes", "count", n)
			}
		}
	}
}

func (t *Tracker) sweepOnce(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for el := t.expiry.Front(); el != nil; {
		e := el.Value.(*entry)
		next := el.Next()
		if e.probe.Deadline.After(now) {
			break // list is oldest-first by insertion, deadlines are monotonic per connection but not globally; scan fully below if needed
		}
		t.expiry.Remove(el)
		delete(t.byKey, e.key)
		t.expired.WithLabelValues(e.probe.ConnID).Inc()
		removed++
		el = next
	}

	// The break above assumes insertion order roughly tracks deadline order,
	// true since TrackForMs is constant per orchestrator round; fall back to
	// a full scan for the rare case of mixed TrackForMs values in flight.
	for el := t.expiry.Front(); el != nil; {
		e := el.Value.(*entry)
		next := el.Next()
		if !e.probe.Deadline.After(now) {
			t.expiry.Remove(el)
			delete(t.byKey, e.key)
			t.expired.WithLabelValues(e.probe.ConnID).Inc()
			removed++
		}
		el = next
	}

	return removed
}

// Len reports the number of in-flight tracked probes, for tests and metrics.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

// matcherAdapter narrows Tracker.MatchICMP down to the bool-only signature
// icmplisten.Matcher needs, so the listener's dispatch loop never has to
// know about Event.
type matcherAdapter struct{ t *Tracker }

func (m matcherAdapter) MatchICMP(p icmplisten.ParsedIcmpError) bool {
	_, ok := m.t.MatchICMP(p)
	return ok
}

// AsMatcher adapts the tracker to icmplisten.Matcher for wiring into
// icmplisten.Dispatch.
func (t *Tracker) AsMatcher() icmplisten.Matcher {
	return matcherAdapter{t: t}
}
