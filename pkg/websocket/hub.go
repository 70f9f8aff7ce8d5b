// Package websocket is the push-socket half of the client fan-out: a
// connection-bookkeeping Hub plus a per-session Client running the
// read-pump/write-pump split, subscribing each session to its job's
// progress stream through internal/broker.
package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/fanout"
)

// MaxConnections is the accepted-connection ceiling; past this the
// upgrade is rejected with 503 rather than accepted and starved.
const MaxConnections = 5000

// Hub tracks every live push-socket connection. Unlike a broadcast hub,
// it does not fan data out itself — each Client drives its own broker
// subscription via fanout.Stream — but it still gates capacity and
// registers/unregisters sessions in the shared fanout.Registry so
// GET /ws/connections/stats reports push-socket sessions alongside
// event-stream ones.
type Hub struct {
	log      zerolog.Logger
	registry *fanout.Registry

	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(log zerolog.Logger, registry *fanout.Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log.With().Str("component", "ws_hub").Logger(),
		registry:   registry,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run drives the register/unregister loop. Call it in its own
// goroutine; it returns when Shutdown is called.
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.registry.Add(&fanout.SessionInfo{ID: c.SessionID, JobID: c.JobID, Transport: "push-socket"})
			h.log.Debug().Str("session_id", c.SessionID).Int64("job_id", c.JobID).Msg("client connected")
		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			h.registry.Remove(c.SessionID)
			h.log.Debug().Str("session_id", c.SessionID).Int64("job_id", c.JobID).Msg("client disconnected")
		}
	}
}

// RegisterClient admits c if under MaxConnections. It reports whether
// the client was admitted.
func (h *Hub) RegisterClient(c *Client) bool {
	if h.GetClientCount() >= MaxConnections {
		return false
	}
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// UnregisterClient removes c; safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every live connection and stops Run.
func (h *Hub) Shutdown() {
	h.cancel()
	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}
