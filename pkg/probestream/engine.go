// SPDX-License-Identifier: Apache-2.0

// Package probestream runs the continuous bidirectional probe-stream engine
// (spec §4.7): a 100pps sender loop, per-inbound-probe statistics, and a
// once-per-second ProbeStatsReport on the control channel.
package probestream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dt-netlab/pathcast/internal/ladder"
	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/dt-netlab/pathcast/pkg/persist"
	"github.com/dt-netlab/pathcast/pkg/session"
	"github.com/dt-netlab/pathcast/pkg/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ProbeRate is 100pps (spec §4.7).
	ProbeRate = 10 * time.Millisecond

	reportInterval = time.Second

	// recentSentLimit bounds the map of our own sent seq -> send time used
	// to correlate RTT from the peer's echoed feedback.
	recentSentLimit = 2000

	// bulkRate and bulkPayloadBytes pace the optional bulk-channel
	// throughput generator (addition to spec §3's bulk channel, gated by
	// bulk_enabled): 20pps of ~1200-byte filler. With BulkPacket's own
	// fields each message encodes to a little over bulkPayloadBytes, so at
	// the default 1200-byte SCTP max payload it is sent as two fragments.
	bulkRate         = 50 * time.Millisecond
	bulkPayloadBytes = 1200
)

// bulkFiller is the constant filler payload packed into every BulkPacket to
// reach bulkPayloadBytes; BulkPacket's own fields add a small, fixed
// overhead on top of it.
var bulkFiller = strings.Repeat("x", bulkPayloadBytes)

var tracer = otel.Tracer("pathcast/probestream")

// Engine runs one session's probe-stream sender loop, receiver and
// per-second reporter.
type Engine struct {
	s   *session.Session
	mr  persist.MetricsRecorder

	c2s *directionState        // direction observed from inbound (client-sent) probes
	s2c *feedbackDirectionState // direction tracked via the peer's echoed feedback

	localSeqMu sync.Mutex
	localSeq   uint64
	sentAt     map[uint64]time.Time
	sentOrder  []uint64
	sentThisWindow int

	bulkSeqMu sync.Mutex
	bulkSeq   uint64
}

// New builds a probe-stream engine for s. mr may be nil (spec §6's
// "if unconfigured, skipped" persistence boundary).
func New(s *session.Session, mr persist.MetricsRecorder) *Engine {
	if mr == nil {
		mr = persist.NoopMetricsRecorder{}
	}
	return &Engine{
		s:      s,
		mr:     mr,
		c2s:    newDirectionState(),
		s2c:    newFeedbackDirectionState(),
		sentAt: make(map[uint64]time.Time),
	}
}

// Run starts the sender loop and the reporter, blocking until ctx is
// cancelled, the session stops, or probe_streams_active/the measuring
// deadline turns false. Both loops observe those flags every tick, bounding
// cancellation latency well under one second (spec §4.7 stop semantics).
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.senderLoop(ctx) }()
	go func() { defer wg.Done(); e.reporterLoop(ctx) }()
	go func() { defer wg.Done(); e.bulkLoop(ctx) }()
	wg.Wait()
}

func (e *Engine) active() bool {
	return e.s.TrafficActive() && e.s.ProbeStreamsActive()
}

func (e *Engine) bulkActive() bool {
	return e.active() && e.s.BulkEnabled()
}

// bulkLoop paces the optional bulk-channel throughput filler at bulkRate
// using the same pacing helper the traceroute and MTU orchestrators use,
// stopping as soon as active() or bulk_enabled turns false (spec addition
// to §3's bulk channel).
func (e *Engine) bulkLoop(ctx context.Context) {
	for {
		if !ladder.Pace(ctx, e.s.Done(), bulkRate) {
			return
		}
		if !e.active() {
			return
		}
		if !e.s.BulkEnabled() {
			continue
		}
		e.sendBulk(ctx)
	}
}

func (e *Engine) sendBulk(ctx context.Context) {
	e.bulkSeqMu.Lock()
	e.bulkSeq++
	seq := e.bulkSeq
	e.bulkSeqMu.Unlock()

	p := wire.BulkPacket{
		Seq:      seq,
		SentAtMs: uint64(time.Now().UnixMilli()),
		ConnID:   e.s.ConnID,
		Payload:  bulkFiller,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := e.s.Channels.Bulk.SendWithOptions(ctx, raw, sendpath.SendOptions{}); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "bulk send failed", "conn_id", e.s.ConnID, "error", err)
	}
}

func (e *Engine) senderLoop(ctx context.Context) {
	ticker := time.NewTicker(ProbeRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.s.Done():
			return
		case <-ticker.C:
			if !e.active() {
				return
			}
			e.sendOne(ctx)
		}
	}
}

func (e *Engine) sendOne(ctx context.Context) {
	now := time.Now()

	e.localSeqMu.Lock()
	e.localSeq++
	seq := e.localSeq
	e.sentAt[seq] = now
	e.sentOrder = append(e.sentOrder, seq)
	if len(e.sentOrder) > recentSentLimit {
		stale := e.sentOrder[0]
		e.sentOrder = e.sentOrder[1:]
		delete(e.sentAt, stale)
	}
	e.sentThisWindow++
	e.localSeqMu.Unlock()

	p := wire.MeasurementProbePacket{
		Seq:       seq,
		SentAtMs:  uint64(now.UnixMilli()),
		Direction: wire.DirectionServerToClient,
		ConnID:    e.s.ConnID,
		Feedback:  e.c2s.feedback(now),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := e.s.Channels.Probe.SendWithOptions(ctx, raw, sendpath.SendOptions{}); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "probe send failed", "conn_id", e.s.ConnID, "error", err)
	}
}

// Receive processes one inbound probe/measurement packet from the peer
// (spec §4.7 receiver logic). Malformed messages are logged and dropped,
// never fatal (spec §7).
func (e *Engine) Receive(ctx context.Context, raw []byte) {
	var p wire.MeasurementProbePacket
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.FromContext(ctx).DebugContext(ctx, "malformed probe packet", "conn_id", e.s.ConnID, "error", err)
		return
	}

	now := time.Now()
	delayMs := float64(now.UnixMilli()) - float64(p.SentAtMs)
	e.c2s.recordArrival(p.Seq, delayMs, now)

	if p.Feedback.HighestSeqReceivedAtMs > 0 {
		e.s2c.observeFeedback(p.Feedback)
		e.localSeqMu.Lock()
		if sentAt, ok := e.sentAt[p.Feedback.HighestSeq]; ok {
			rtt := float64(now.Sub(sentAt).Microseconds()) / 1000.0
			e.s2c.recordRTT(rtt, now)
		}
		e.localSeqMu.Unlock()
	}
}

func (e *Engine) reporterLoop(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.s.Done():
			return
		case <-ticker.C:
			if !e.active() {
				return
			}
			e.reportOnce(ctx)
		}
	}
}

func (e *Engine) reportOnce(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "probestream.report", trace.WithAttributes(
		attribute.String("pathcast.conn_id", e.s.ConnID),
	))
	defer span.End()

	now := time.Now()

	e.localSeqMu.Lock()
	sentCount := e.sentThisWindow
	e.sentThisWindow = 0
	e.localSeqMu.Unlock()

	report := wire.ProbeStatsReport{
		Envelope: wire.Envelope{
			Type: wire.TypeProbeStatsReport, ConnID: e.s.ConnID, SurveySessionID: e.s.SurveySessionID,
		},
		C2S: e.c2s.snapshot(now),
		S2C: e.s2c.snapshot(now, sentCount),
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := e.s.Channels.Control.SendWithOptions(ctx, raw, sendpath.SendOptions{}); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "probe_stats_report publish failed", "conn_id", e.s.ConnID, "error", err)
	}

	snapshot := persist.ProbeStatsSnapshot{
		At: now,
		C2S: persist.DirectionSnapshot{
			DelayDeviationMs: percentilesToPersist(report.C2S.DelayDeviationMs),
			JitterMs:         percentilesToPersist(report.C2S.JitterMs),
			RTTMs:            percentilesToPersist(report.C2S.RTTMs),
			LossRate:         report.C2S.LossRate,
			ReorderRate:      report.C2S.ReorderRate,
			ProbeCount:       report.C2S.ProbeCount,
			BaselineDelayMs:  report.C2S.BaselineDelayMs,
		},
		S2C: persist.DirectionSnapshot{
			DelayDeviationMs: percentilesToPersist(report.S2C.DelayDeviationMs),
			JitterMs:         percentilesToPersist(report.S2C.JitterMs),
			RTTMs:            percentilesToPersist(report.S2C.RTTMs),
			LossRate:         report.S2C.LossRate,
			ReorderRate:      report.S2C.ReorderRate,
			ProbeCount:       report.S2C.ProbeCount,
			BaselineDelayMs:  report.S2C.BaselineDelayMs,
		},
	}
	if err := e.mr.RecordProbeStats(ctx, e.s.ConnID, e.s.SurveySessionID, snapshot); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "persist record_probe_stats failed", "conn_id", e.s.ConnID, "error", err)
	}
}

func percentilesToPersist(p wire.Percentiles) persist.Percentiles {
	return persist.Percentiles{P50: p.P50, P99: p.P99, Min: p.Min, Max: p.Max}
}
