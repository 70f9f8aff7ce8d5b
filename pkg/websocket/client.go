package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/fanout"
	"github.com/cncaiprojem/progressd/internal/progress"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// controlFrame is the only shape accepted from the client:
// {"action": "ping" | "unsubscribe"}. Unknown actions are ignored.
type controlFrame struct {
	Action string `json:"action"`
}

// Client is one push-socket session: a job subscription driven by
// fanout.Stream, fed through send to the write pump, paired with a
// read pump that processes client control frames.
type Client struct {
	conn *websocket.Conn

	SessionID string
	JobID     int64
	Filter    fanout.Filter
	Cursor    int64

	send chan []byte

	broker *broker.Broker
	hub    *Hub
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(conn *websocket.Conn, hub *Hub, br *broker.Broker, sessionID string, jobID int64, filter fanout.Filter, cursor int64, log zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:      conn,
		SessionID: sessionID,
		JobID:     jobID,
		Filter:    filter,
		Cursor:    cursor,
		send:      make(chan []byte, sendBufferSize),
		broker:    br,
		hub:       hub,
		log:       log.With().Str("session_id", sessionID).Int64("job_id", jobID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run drives the full session: connection envelope, the streamLoop
// goroutine feeding send, a readPump goroutine servicing control
// frames, and the write pump in the calling goroutine. It returns once
// the session is Closed.
func (c *Client) Run() {
	defer func() {
		c.cancel()
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if frame, err := encodeFrame(fanout.EnvelopeConnection, connectionFrame{
		Type:               string(fanout.EnvelopeConnection),
		ConnectionEnvelope: fanout.ConnectionEnvelope{SessionID: c.SessionID, JobID: c.JobID},
	}); err == nil {
		select {
		case c.send <- frame:
		default:
		}
	}

	go c.readPump()
	go c.streamLoop()

	c.writePump()
}

// streamLoop drives the Subscribed -> Streaming session state through
// fanout.Stream, translating each envelope into a send on c.send. A
// full send buffer or a Stream error ends the session.
func (c *Client) streamLoop() {
	defer c.cancel()
	sender := &wsSender{client: c}
	if err := fanout.Stream(c.ctx, c.broker, c.JobID, c.Cursor, c.Filter, sender); err != nil {
		c.log.Debug().Err(err).Msg("push-socket stream ended")
	}
}

// readPump processes inbound control frames: {"action":"ping"} gets a
// pong reply, {"action":"unsubscribe"} triggers an orderly close.
// Unknown actions are logged at debug and otherwise ignored.
func (c *Client) readPump() {
	defer c.cancel()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug().Err(err).Msg("malformed control frame")
			continue
		}
		switch frame.Action {
		case "ping":
			if data, err := encodeFrame(fanout.EnvelopePong, pongFrame{Type: string(fanout.EnvelopePong), Timestamp: time.Now().UnixMilli()}); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		case "unsubscribe":
			return
		default:
			c.log.Debug().Str("action", frame.Action).Msg("unknown control frame action")
		}
	}
}

// writePump owns the connection's write side: it drains send and
// issues transport-level pings, matching the no-implicit-keepalive-
// envelope rule for this transport (the event-stream transport emits a
// keepalive envelope instead; this one relies on the ws ping/pong).
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsSender implements fanout.Sender over a Client's send channel,
// flattening each envelope into the push-socket wire format: the
// underlying fields plus an added "type".
type wsSender struct {
	client *Client
}

func (s *wsSender) SendProgress(ctx context.Context, msg *progress.Message) error {
	return s.push(fanout.EnvelopeProgress, progressFrame{Type: string(fanout.EnvelopeProgress), Message: msg})
}

func (s *wsSender) SendComplete(ctx context.Context, jobID int64, status progress.Status) error {
	return s.push(fanout.EnvelopeComplete, completeFrame{
		Type:             string(fanout.EnvelopeComplete),
		CompleteEnvelope: fanout.CompleteEnvelope{JobID: jobID, Status: string(status)},
	})
}

func (s *wsSender) SendError(ctx context.Context, message string, retryMs int) error {
	return s.push(fanout.EnvelopeError, errorFrame{
		Type:          string(fanout.EnvelopeError),
		ErrorEnvelope: fanout.ErrorEnvelope{Message: message, RetryMs: retryMs},
	})
}

func (s *wsSender) SendKeepalive(ctx context.Context) error {
	return nil // transport-level ping covers keepalive on this transport.
}

func (s *wsSender) push(envType fanout.EnvelopeType, payload interface{}) error {
	data, err := encodeFrame(envType, payload)
	if err != nil {
		return err
	}
	select {
	case s.client.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}
