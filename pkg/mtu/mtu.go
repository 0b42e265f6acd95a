// SPDX-License-Identifier: Apache-2.0

// Package mtu runs path-MTU-discovery rounds over a session's testprobe
// channel (spec §4.6). Structurally a sibling of pkg/traceroute: same
// ladder/drain pacing (internal/ladder), same tracked-probe/control-channel
// publish flow, different schedule (payload size instead of bare TTL).
package mtu

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
	"go.opentelemetry.io/otel/trace"
)

// SizeLadder is the fixed schedule of MTU probe sizes (spec §4.6). Run
// probes only the packet_size it is given; this package does not iterate
// SizeLadder itself. The trailing 1500 is deliberate (source retains it).
var SizeLadder = []int{576, 1280, 1350, 1400, 1450, 1472, 1490, 1500, 1500}

const (
	// DefaultPathTTL bounds the TTL ladder iterated for each size.
	DefaultPathTTL = 16

	pacingDelay = 50 * time.Millisecond
	drainPoll   = 50 * time.Millisecond

	// connHashStepBytes offsets each connection's probe sizes apart from
	// every other connection's at the same packet_size, same coprime-with-50
	// constant pkg/traceroute uses for the identical purpose (spec §3
	// invariant: (dest, udp_length) must stay unique per session, and
	// sessions sharing a destination demultiplex by conn_id).
	connHashStepBytes = 97

	// ttlSizeStepBytes is the small per-TTL step that keeps each probe's
	// size close to the requested packet_size, unlike traceroute's 50-byte
	// step: an MTU probe's whole point is testing whether packet_size
	// itself passes, so the per-TTL offset here stays minimal.
	ttlSizeStepBytes = 1

	// DefaultCollectTimeoutMs is used when a StartMtuTraceroute request
	// omits collect_timeout_ms.
	DefaultCollectTimeoutMs = 2000

	// DefaultRounds is how many MTU-orchestrator rounds run per survey
	// session by default (spec §6).
	DefaultRounds = 9
)

var tracer = otel.Tracer("pathcast/mtu")

func connHash(connID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return int(h.Sum32() % 10)
}

// targetSizeFor computes the padded probe size for one TTL within an MTU
// round at packetSize: hash*connHashStepBytes keeps this connection's sizes
// apart from any other connection probing the same packetSize, and
// ttl*ttlSizeStepBytes keeps consecutive TTLs apart within this connection,
// both satisfying the (dest, udp_length) uniqueness invariant (spec §3)
// without drifting far from the requested packetSize.
func targetSizeFor(packetSize, ttl, hash int) int {
	return packetSize + hash*connHashStepBytes + ttl*ttlSizeStepBytes
}

// buildProbe marshals a TestProbePacket padded to targetSize bytes, the
// same uniqueness scheme traceroute uses (spec §3 invariant).
func buildProbe(seq uint64, connID string, targetSize int) []byte {
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

func sendOptionsFor(ttl int, collectTimeoutMs int) sendpath.SendOptions {
	return sendpath.SendOptions{
		TTL:                     sendpath.U8(uint8(ttl)),
		DFBit:                   sendpath.Bool(true),
		TrackForMs:              uint32(collectTimeoutMs),
		BypassDTLS:              true,
		BypassSCTPFragmentation: true,
	}
}

// Run executes one MTU-discovery round for packetSize (spec §4.6): iterates
// TTL 1..pathTTL at that size, drains the tracker, and publishes MtuHop
// events on the control channel.
func Run(ctx context.Context, s *session.Session, trk *tracker.Tracker, packetSize, pathTTL, collectTimeoutMs int) error {
	if pathTTL <= 0 {
		pathTTL = DefaultPathTTL
	}
	if collectTimeoutMs <= 0 {
		collectTimeoutMs = DefaultCollectTimeoutMs
	}

	ctx, span := tracer.Start(ctx, "mtu.round", trace.WithAttributes(
		attribute.String("pathcast.conn_id", s.ConnID),
		attribute.Int("pathcast.packet_size", packetSize),
	))
	defer span.End()

	log := logger.FromContext(ctx)
	hash := connHash(s.ConnID)

	for ttl := 1; ttl <= pathTTL; ttl++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Done():
			return nil
		default:
		}

		payload := buildProbe(uint64(ttl), s.ConnID, targetSizeFor(packetSize, ttl, hash))
		opts := sendOptionsFor(ttl, collectTimeoutMs)

		if err := s.Channels.TestProbe.SendWithOptions(ctx, payload, opts); err != nil {
			log.ErrorContext(ctx, "mtu probe send failed", "conn_id", s.ConnID, "ttl", ttl, "size", packetSize, "error", err)
			continue
		}

		if !ladder.Pace(ctx, s.Done(), pacingDelay) {
			return nil
		}
	}

	drainWindow := time.Duration(collectTimeoutMs) * time.Millisecond
	ladder.Drain(ctx, s.Done(), trk, s.ConnID, drainWindow, drainPoll, func(ev tracker.Event) {
		publishHop(ctx, s, ev, packetSize)
	})

	return nil
}

// RunRounds repeats Run rounds times at packetSize, the same
// repeat-the-whole-round pattern pkg/traceroute.RunRounds applies, so
// pkg/config's runtime-config loader can drive MTU repetition the same way
// it drives traceroute repetition (spec §6 "MTU-orchestrator rounds run per
// survey session").
func RunRounds(ctx context.Context, s *session.Session, trk *tracker.Tracker, packetSize, pathTTL, collectTimeoutMs, rounds int) error {
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
		if err := Run(ctx, s, trk, packetSize, pathTTL, collectTimeoutMs); err != nil {
			return err
		}
	}
	return nil
}

func publishHop(ctx context.Context, s *session.Session, ev tracker.Event, packetSize int) {
	ttl := 0
	if ev.Options.TTL != nil {
		ttl = int(*ev.Options.TTL)
	}
	hop := wire.MtuHop{
		Envelope:   wire.Envelope{Type: wire.TypeMtuHop, ConnID: s.ConnID, SurveySessionID: s.SurveySessionID},
		Hop:        ttl,
		RTTMs:      float64(ev.RTT.Microseconds()) / 1000.0,
		PacketSize: packetSize,
	}
	if ev.ICMPSource != nil {
		hop.IPAddress = ev.ICMPSource.String()
	}
	if ev.MTU != nil {
		hop.MTU = ev.MTU
	}
	raw, err := json.Marshal(hop)
	if err != nil {
		return
	}
	_ = s.Channels.Control.SendWithOptions(ctx, raw, sendpath.SendOptions{})
}
