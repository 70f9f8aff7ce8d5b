package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/fanout"
	"github.com/cncaiprojem/progressd/internal/progress"
)

func TestEncodeFrameFlattensTypeAlongsideEnvelope(t *testing.T) {
	data, err := encodeFrame(fanout.EnvelopeConnection, connectionFrame{
		Type:               string(fanout.EnvelopeConnection),
		ConnectionEnvelope: fanout.ConnectionEnvelope{SessionID: "s1", JobID: 7},
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "connection", decoded["type"])
	require.Equal(t, "s1", decoded["session_id"])
	require.Equal(t, float64(7), decoded["job_id"])
}

func TestEncodeFrameProgressFlattensMessageFields(t *testing.T) {
	msg := &progress.Message{JobID: 3, EventID: 5, EventType: progress.EventOCCT}
	data, err := encodeFrame(fanout.EnvelopeProgress, progressFrame{Type: string(fanout.EnvelopeProgress), Message: msg})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "progress", decoded["type"])
	require.Equal(t, float64(5), decoded["event_id"])
}

func TestControlFrameUnmarshalPing(t *testing.T) {
	var frame controlFrame
	require.NoError(t, json.Unmarshal([]byte(`{"action":"ping"}`), &frame))
	require.Equal(t, "ping", frame.Action)
}

func TestControlFrameUnmarshalUnsubscribe(t *testing.T) {
	var frame controlFrame
	require.NoError(t, json.Unmarshal([]byte(`{"action":"unsubscribe"}`), &frame))
	require.Equal(t, "unsubscribe", frame.Action)
}
