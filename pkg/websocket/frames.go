package websocket

import (
	"encoding/json"
	"errors"

	"github.com/cncaiprojem/progressd/internal/fanout"
	"github.com/cncaiprojem/progressd/internal/progress"
)

var errSendBufferFull = errors.New("websocket: client send buffer full")

// These frame wrappers flatten an envelope's fields alongside an added
// "type", per the push-socket wire format.
type connectionFrame struct {
	Type string `json:"type"`
	fanout.ConnectionEnvelope
}

type completeFrame struct {
	Type string `json:"type"`
	fanout.CompleteEnvelope
}

type errorFrame struct {
	Type string `json:"type"`
	fanout.ErrorEnvelope
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type progressFrame struct {
	Type string `json:"type"`
	*progress.Message
}

func encodeFrame(_ fanout.EnvelopeType, payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
