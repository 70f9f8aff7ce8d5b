package websocket

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/auth"
	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/fanout"
	"github.com/cncaiprojem/progressd/internal/jobs"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS handles PUSH-SOCKET /ws/jobs/{job_id}/progress: it resolves
// and authorizes the job, upgrades the connection, and hands the new
// Client to hub before starting its Run loop.
func ServeWS(hub *Hub, br *broker.Broker, jobsRepo jobs.Repository, jwtManager *auth.JWTManager, log zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(r.PathValue("job_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid job_id", http.StatusBadRequest)
		return
	}

	claims, err := jwtManager.WebSocketAuth(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := fanout.Authorize(r.Context(), jobsRepo, claims, jobID); err != nil {
		if err == jobs.ErrNotFound {
			http.Error(w, "job not found", http.StatusNotFound)
		} else {
			http.Error(w, "forbidden", http.StatusForbidden)
		}
		return
	}

	if hub.GetClientCount() >= MaxConnections {
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	var lastEventID int64
	if raw := r.URL.Query().Get("last_event_id"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastEventID = v
		}
	}
	filter := fanout.ParseFilter(r.URL.Query())

	client := NewClient(conn, hub, br, uuid.NewString(), jobID, filter, lastEventID, log)
	if !hub.RegisterClient(client) {
		conn.Close()
		return
	}
	go client.Run()
}
