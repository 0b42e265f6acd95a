// SPDX-License-Identifier: Apache-2.0

// Package session holds per-peer-connection measurement state (spec §3
// Session, §4.4 Measurement session), generalized from the teacher's
// checks.Check/ChecksController pattern: a Session plays the role of a
// Check, and Manager plays the role of ChecksController.
package session

import (
	"time"

	"github.com/dt-netlab/pathcast/internal/sendpath"
)

// Channel labels, spec §3 "distinguished only by label".
const (
	ChannelProbe     = "probe"
	ChannelBulk      = "bulk"
	ChannelControl   = "control"
	ChannelTestProbe = "testprobe"
)

// DataChannels holds the four per-session send paths, named exactly as the
// data model's channel labels. Each is the top of the full decorator chain
// built by sendpath.Build against the shared UDP socket, so a plain
// SendWithOptions(ctx, payload, sendpath.SendOptions{}) behaves as an
// ordinary send.
type DataChannels struct {
	Probe     sendpath.Sender // unreliable, unordered: short probes and feedback
	Bulk      sendpath.Sender // unreliable, unordered: optional throughput payload
	Control   sendpath.Sender // reliable, ordered: tagged JSON messages
	TestProbe sendpath.Sender // unreliable, unordered: traceroute/MTU probes
}

// DirectionStats is the snapshot output of the probe-stream engine (spec §3).
type DirectionStats struct {
	DelayDeviationMs Percentiles
	JitterMs         Percentiles
	RTTMs            Percentiles
	LossRate         float64
	ReorderRate      float64
	ProbeCount       int
	BaselineDelayMs  float64
}

// Percentiles is the four-value summary spec §3 names for each metric.
type Percentiles struct {
	P50, P99, Min, Max float64
}

// Hop is a traceroute hop event published on the control channel (spec §3).
type Hop struct {
	HopIndex        int        `json:"hop_index"`
	RemoteAddress   string     `json:"remote_address,omitempty"`
	RTTMs           float64    `json:"rtt_ms"`
	ConnID          string     `json:"conn_id"`
	SurveySessionID string     `json:"survey_session_id,omitempty"`
	MTU             *int       `json:"mtu,omitempty"`
	At              time.Time  `json:"-"`
}

