// SPDX-License-Identifier: Apache-2.0

// Package wire defines the JSON message shapes exchanged on the control,
// probe, testprobe and bulk channels (spec §6 External Interfaces). Field
// naming is snake_case; numeric timestamps are unsigned 64-bit milliseconds
// since Unix epoch, matching the wire contract exactly.
package wire

// Direction labels used on probe/testprobe/measurement packets.
const (
	DirectionClientToServer = "client_to_server"
	DirectionServerToClient = "server_to_client"
)

// SendOptions is the wire projection of internal/sendpath.SendOptions,
// carried on probe/testprobe packets that request per-packet socket
// behavior.
type SendOptions struct {
	TTL                     *uint8  `json:"ttl,omitempty"`
	DFBit                   *bool   `json:"df_bit,omitempty"`
	TOS                     *uint8  `json:"tos,omitempty"`
	FlowLabel               *uint32 `json:"flow_label,omitempty"`
	TrackForMs              uint32  `json:"track_for_ms,omitempty"`
	BypassDTLS              bool    `json:"bypass_dtls,omitempty"`
	BypassSCTPFragmentation bool    `json:"bypass_sctp_fragmentation,omitempty"`
}

// ProbePacket is sent on the probe channel (spec §6).
type ProbePacket struct {
	Seq         uint64       `json:"seq"`
	TimestampMs uint64       `json:"timestamp_ms"`
	Direction   string       `json:"direction"`
	ConnID      string       `json:"conn_id"`
	SendOptions *SendOptions `json:"send_options,omitempty"`
}

// TestProbePacket is sent on the testprobe channel; Padding absorbs the
// ladder's size requirement when the rest of the object is shorter than the
// target size (spec §4.5, §4.6).
type TestProbePacket struct {
	TestSeq     uint64       `json:"test_seq"`
	TimestampMs uint64       `json:"timestamp_ms"`
	Direction   string       `json:"direction"`
	ConnID      string       `json:"conn_id"`
	SendOptions *SendOptions `json:"send_options,omitempty"`
	Padding     string       `json:"padding,omitempty"`
}

// Feedback is the sender loop's current snapshot of reverse-direction
// receipt state, embedded in MeasurementProbePacket (spec §4.7).
type Feedback struct {
	HighestSeq             uint64 `json:"highest_seq"`
	HighestSeqReceivedAtMs uint64 `json:"highest_seq_received_at_ms"`
	RecentCount            int    `json:"recent_count"`
	RecentReorders         int    `json:"recent_reorders"`
}

// MeasurementProbePacket is the probe-stream engine's sender-loop payload.
type MeasurementProbePacket struct {
	Seq       uint64   `json:"seq"`
	SentAtMs  uint64   `json:"sent_at_ms"`
	Direction string   `json:"direction"`
	ConnID    string   `json:"conn_id"`
	Feedback  Feedback `json:"feedback"`
}

// Percentiles is the four-value summary used throughout DirectionStats.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P99 float64 `json:"p99"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DirectionStats is the wire projection of pkg/session.DirectionStats.
type DirectionStats struct {
	DelayDeviationMs Percentiles `json:"delay_deviation_ms"`
	JitterMs         Percentiles `json:"jitter_ms"`
	RTTMs            Percentiles `json:"rtt_ms"`
	LossRate         float64     `json:"loss_rate"`
	ReorderRate      float64     `json:"reorder_rate"`
	ProbeCount       int         `json:"probe_count"`
	BaselineDelayMs  float64     `json:"baseline_delay_ms"`
}

// --- Control-channel tagged messages (spec §4.8) ---

// Envelope is decoded first to dispatch on Type; the remaining fields are
// re-decoded into the variant-specific struct. Unknown fields are ignored by
// encoding/json's default behavior, satisfying spec §6.
type Envelope struct {
	Type            string `json:"type"`
	ConnID          string `json:"conn_id"`
	SurveySessionID string `json:"survey_session_id"`
}

const (
	TypeStartSurveySession  = "start_survey_session"
	TypeStartTraceroute     = "start_traceroute"
	TypeStartMtuTraceroute  = "start_mtu_traceroute"
	TypeStartProbeStreams   = "start_probe_streams"
	TypeStopProbeStreams    = "stop_probe_streams"
	TypeStopTraceroute      = "stop_traceroute"
	TypeStopServerTraffic   = "stop_server_traffic"
	TypeGetMeasuringTime    = "get_measuring_time"
	TypeTestProbeEcho       = "test_probe_message_echo"
	TypeProbeStats          = "probe_stats"
	TypeServerSideReady     = "server_side_ready"
	TypeMeasuringTimeResp   = "measuring_time_response"
	TypeTraceHop            = "trace_hop"
	TypeTracerouteCompleted = "traceroute_completed"
	TypeMtuHop              = "mtu_hop"
	TypeProbeStatsReport    = "probe_stats_report"
)

// StartSurveySession registers a conn_id/survey_session_id mapping.
type StartSurveySession struct {
	Envelope
	MagicKey string `json:"magic_key,omitempty"`
}

// StartProbeStreams begins the continuous probe-stream engine for a
// session. BulkEnabled is an addition beyond the core probe/testprobe
// streams: it gates the optional bulk-channel throughput generator (spec §3
// names a bulk channel whose only specified behavior is "optional
// throughput payload").
type StartProbeStreams struct {
	Envelope
	BulkEnabled bool `json:"bulk_enabled,omitempty"`
}

// BulkPacket is the optional throughput-filler payload sent on the bulk
// channel while bulk_enabled is set (addition to spec §3's bulk channel).
type BulkPacket struct {
	Seq      uint64 `json:"seq"`
	SentAtMs uint64 `json:"sent_at_ms"`
	ConnID   string `json:"conn_id"`
	Payload  string `json:"payload"`
}

// StartMtuTraceroute requests one MTU-orchestrator round for packet_size.
type StartMtuTraceroute struct {
	Envelope
	PacketSize      int `json:"packet_size"`
	PathTTL         int `json:"path_ttl"`
	CollectTimeoutMs int `json:"collect_timeout_ms"`
}

// ServerSideReady replies to StartSurveySession.
type ServerSideReady struct {
	Envelope
}

// MeasuringTimeResponse replies to get_measuring_time.
type MeasuringTimeResponse struct {
	Envelope
	Seconds int `json:"seconds"`
}

// TraceHop is published once per matched traceroute hop (spec §3 Hop event).
type TraceHop struct {
	Envelope
	Hop           int     `json:"hop"`
	IPAddress     string  `json:"ip_address,omitempty"`
	RTTMs         float64 `json:"rtt_ms"`
}

// TracerouteCompleted closes out a traceroute round.
type TracerouteCompleted struct {
	Envelope
}

// MtuHop is published once per MTU-orchestrator probe result.
type MtuHop struct {
	Envelope
	Hop        int     `json:"hop"`
	IPAddress  string  `json:"ip_address,omitempty"`
	RTTMs      float64 `json:"rtt_ms"`
	MTU        *int    `json:"mtu,omitempty"`
	PacketSize int     `json:"packet_size"`
}

// TestProbeEcho carries an arbitrary payload the server bounces back
// unchanged on the testprobe channel (spec §4.8 test_probe_message_echo).
type TestProbeEcho struct {
	Envelope
	Payload string `json:"payload,omitempty"`
}

// ProbeStatsReport is published once per second by the probe-stream engine.
type ProbeStatsReport struct {
	Envelope
	C2S DirectionStats `json:"c2s_stats"`
	S2C DirectionStats `json:"s2c_stats"`
}
