// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dt-netlab/pathcast/internal/sendpath"
	"github.com/dt-netlab/pathcast/internal/tracker"
	"github.com/dt-netlab/pathcast/pkg/session"
	"github.com/dt-netlab/pathcast/pkg/wire"
)

type recordingSender struct {
	mu    chan struct{}
	sent  [][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{mu: make(chan struct{}, 64)}
}

func (r *recordingSender) SendWithOptions(_ context.Context, payload []byte, _ sendpath.SendOptions) error {
	r.sent = append(r.sent, append([]byte(nil), payload...))
	select {
	case r.mu <- struct{}{}:
	default:
	}
	return nil
}

func newTestSession(connID, surveySessionID string) (*session.Session, *recordingSender) {
	control := newRecordingSender()
	channels := session.DataChannels{
		Probe:     newRecordingSender(),
		Bulk:      newRecordingSender(),
		Control:   control,
		TestProbe: newRecordingSender(),
	}
	s := session.New(connID, surveySessionID, "DEMO", channels, session.DemoMeasuringSeconds*time.Second)
	return s, control
}

func TestHandleGetMeasuringTimeReplies(t *testing.T) {
	s, control := newTestSession("conn-1", "survey-1")
	d := New(session.NewManager(nil, nil), tracker.New(0), nil, DefaultConfig())

	msg := wire.Envelope{Type: wire.TypeGetMeasuringTime, ConnID: "conn-1", SurveySessionID: "survey-1"}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	d.Handle(t.Context(), s, raw, ChannelControl)

	require.Len(t, control.sent, 1)
	var resp wire.MeasuringTimeResponse
	require.NoError(t, json.Unmarshal(control.sent[0], &resp))
	assert.Equal(t, wire.TypeMeasuringTimeResp, resp.Type)
	assert.Equal(t, session.DemoMeasuringSeconds, resp.Seconds)
}

func TestHandleStartSurveySessionRegistersAndReplies(t *testing.T) {
	s, control := newTestSession("conn-1", "")
	mgr := session.NewManager(nil, nil)
	d := New(mgr, tracker.New(0), nil, DefaultConfig())

	msg := wire.StartSurveySession{
		Envelope: wire.Envelope{Type: wire.TypeStartSurveySession, ConnID: "conn-1", SurveySessionID: "survey-9"},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	d.Handle(t.Context(), s, raw, ChannelControl)

	assert.Equal(t, "survey-9", s.SurveySessionID)
	require.Len(t, control.sent, 1)
	var resp wire.ServerSideReady
	require.NoError(t, json.Unmarshal(control.sent[0], &resp))
	assert.Equal(t, wire.TypeServerSideReady, resp.Type)
}

func TestHandleStopProbeStreamsIdempotent(t *testing.T) {
	s, _ := newTestSession("conn-1", "survey-1")
	d := New(session.NewManager(nil, nil), tracker.New(0), nil, DefaultConfig())

	stop := wire.Envelope{Type: wire.TypeStopProbeStreams, ConnID: "conn-1", SurveySessionID: "survey-1"}
	raw, err := json.Marshal(stop)
	require.NoError(t, err)

	d.Handle(t.Context(), s, raw, ChannelControl)
	d.Handle(t.Context(), s, raw, ChannelControl)

	assert.False(t, s.ProbeStreamsActive())
}

func TestHandleRejectsMessageMissingConnID(t *testing.T) {
	s, control := newTestSession("conn-1", "survey-1")
	d := New(session.NewManager(nil, nil), tracker.New(0), nil, DefaultConfig())

	raw, err := json.Marshal(wire.Envelope{Type: wire.TypeGetMeasuringTime})
	require.NoError(t, err)

	d.Handle(t.Context(), s, raw, ChannelControl)

	assert.Empty(t, control.sent)
}

func TestHandleTestProbeEchoRepliesOnTestProbeChannel(t *testing.T) {
	s, _ := newTestSession("conn-1", "survey-1")
	testProbe := s.Channels.TestProbe.(*recordingSender)
	d := New(session.NewManager(nil, nil), tracker.New(0), nil, DefaultConfig())

	raw, err := json.Marshal(wire.TestProbeEcho{
		Envelope: wire.Envelope{Type: wire.TypeTestProbeEcho, ConnID: "conn-1", SurveySessionID: "survey-1"},
		Payload:  "ping",
	})
	require.NoError(t, err)

	d.Handle(t.Context(), s, raw, ChannelTestProbe)

	require.Len(t, testProbe.sent, 1)
}
