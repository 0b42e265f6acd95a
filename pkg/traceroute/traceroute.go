// SPDX-License-Identifier: Apache-2.0

// Package traceroute runs hop-by-hop TTL-ladder traceroute rounds over a
// session's testprobe channel (spec §4.5), grounded on the teacher's
// pkg/checks/traceroute + internal/traceroute/hopper.go TTL-ladder
// goroutine-per-hop pattern, adapted from "dial UDP and let the kernel emit
// ICMP" to "emit a tracked, optioned probe and await a tracker match."
package traceroute

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"time"

	"github.com/dt-netlab/pathcast/internal/ladder"
	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/dt-netlab/pathcast/internal/tracker"
	"github.com/dt-netlab/pathcast/pkg/session"
	"github.com/dt-netlab/pathcast/pkg/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ladder constants, spec §4.5.
const (
	MaxTTL = 16

	basePaddingBytes  = 100
	ttlSizeStepBytes  = 50
	connHashStepBytes = 97

	pacingDelay  = 50 * time.Millisecond
	drainWindow  = 500 * time.Millisecond
	drainPoll    = 50 * time.Millisecond
	trackForMs   = 5000
	StaggerDelay = 1000 * time.Millisecond

	// DefaultRounds is how many times a traceroute round runs per survey
	// session by default (spec §4.5).
	DefaultRounds = 3
)

var tracer = otel.Tracer("pathcast/traceroute")

// connHash returns a stable value in [0,9] for connID, so concurrent
// connections' per-TTL payload sizes never collide (spec §3 invariant).
func connHash(connID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return int(h.Sum32() % 10)
}

func paddingSize(ttl, hash int) int {
	return basePaddingBytes + hash*connHashStepBytes + ttl*ttlSizeStepBytes
}

// buildProbe marshals a TestProbePacket padded to targetSize bytes.
func buildProbe(seq uint64, connID string, ttl int, targetSize int) []byte {
	p := wire.TestProbePacket{
		TestSeq:     seq,
		TimestampMs: uint64(time.Now().UnixMilli()),
		Direction:   wire.DirectionClientToServer,
		ConnID:      connID,
	}
	raw, _ := json.Marshal(p)
	// A non-empty Padding also adds its `,"padding":""` wrapper.
	const paddingFieldOverhead = len(`,"padding":""`)
	if pad := targetSize - len(raw) - paddingFieldOverhead; pad > 0 {
		p.Padding = strings.Repeat("x", pad)
		raw, _ = json.Marshal(p)
	}
	return raw
}

func sendOptionsFor(ttl int) sendpath.SendOptions {
	return sendpath.SendOptions{
		TTL:                     sendpath.U8(uint8(ttl)),
		DFBit:                   sendpath.Bool(true),
		TrackForMs:              trackForMs,
		BypassDTLS:              true,
		BypassSCTPFragmentation: true,
	}
}

// Run executes one traceroute round (spec §4.5): sends the TTL ladder on
// the testprobe channel, drains the tracker, and publishes TraceHop/
// TracerouteCompleted on the control channel.
func Run(ctx context.Context, s *session.Session, trk *tracker.Tracker) error {
	ctx, span := tracer.Start(ctx, "traceroute.round", trace.WithAttributes(
		attribute.String("pathcast.conn_id", s.ConnID),
		attribute.String("pathcast.survey_session_id", s.SurveySessionID),
	))
	defer span.End()

	log := logger.FromContext(ctx)
	hash := connHash(s.ConnID)

	for ttl := 1; ttl <= MaxTTL; ttl++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Done():
			return nil
		default:
		}

		size := paddingSize(ttl, hash)
		payload := buildProbe(uint64(ttl), s.ConnID, ttl, size)
		opts := sendOptionsFor(ttl)

		if err := s.Channels.TestProbe.SendWithOptions(ctx, payload, opts); err != nil {
			log.ErrorContext(ctx, "traceroute probe send failed", "conn_id", s.ConnID, "ttl", ttl, "error", err)
			continue
		}

		if !ladder.Pace(ctx, s.Done(), pacingDelay) {
			return nil
		}
	}

	ladder.Drain(ctx, s.Done(), trk, s.ConnID, drainWindow, drainPoll, func(ev tracker.Event) {
		publishHop(ctx, s, ev)
	})

	completed := wire.TracerouteCompleted{Envelope: wire.Envelope{
		Type: wire.TypeTracerouteCompleted, ConnID: s.ConnID, SurveySessionID: s.SurveySessionID,
	}}
	raw, _ := json.Marshal(completed)
	if err := s.Channels.Control.SendWithOptions(ctx, raw, sendpath.SendOptions{}); err != nil {
		log.ErrorContext(ctx, "failed to publish traceroute_completed", "conn_id", s.ConnID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "traceroute_completed publish failed")
	}
	return nil
}

// RunRounds runs rounds sequential traceroute rounds (spec §4.5 "Three
// rounds per survey by default"), stopping early if ctx is cancelled or the
// session stops. Each round's own drain window paces the gap to the next.
func RunRounds(ctx context.Context, s *session.Session, trk *tracker.Tracker, rounds int) error {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	for round := 0; round < rounds; round++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Done():
			return nil
		default:
		}
		if err := Run(ctx, s, trk); err != nil {
			return err
		}
	}
	return nil
}

func publishHop(ctx context.Context, s *session.Session, ev tracker.Event) {
	ttl := 0
	if ev.Options.TTL != nil {
		ttl = int(*ev.Options.TTL)
	}
	hop := wire.TraceHop{
		Envelope: wire.Envelope{Type: wire.TypeTraceHop, ConnID: s.ConnID, SurveySessionID: s.SurveySessionID},
		Hop:      ttl,
		RTTMs:    float64(ev.RTT.Microseconds()) / 1000.0,
	}
	if ev.ICMPSource != nil {
		hop.IPAddress = ev.ICMPSource.String()
	}
	raw, err := json.Marshal(hop)
	if err != nil {
		return
	}
	_ = s.Channels.Control.SendWithOptions(ctx, raw, sendpath.SendOptions{})
}
