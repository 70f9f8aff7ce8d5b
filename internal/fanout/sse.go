package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/auth"
	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/jobs"
	"github.com/cncaiprojem/progressd/internal/progress"
)

// sseSender writes the event-stream framing described by the wire
// format: `event: <name>`, `id: <event_id>` (progress frames only),
// `data: <json>`, and an optional `retry: <ms>`.
type sseSender struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSender) writeFrame(event string, id string, retryMs int, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fanout: marshal %s frame: %w", event, err)
	}
	fmt.Fprintf(s.w, "event: %s\n", event)
	if id != "" {
		fmt.Fprintf(s.w, "id: %s\n", id)
	}
	if retryMs > 0 {
		fmt.Fprintf(s.w, "retry: %d\n", retryMs)
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
	return nil
}

func (s *sseSender) SendProgress(ctx context.Context, msg *progress.Message) error {
	return s.writeFrame(string(EnvelopeProgress), strconv.FormatInt(msg.EventID, 10), 0, msg)
}

func (s *sseSender) SendComplete(ctx context.Context, jobID int64, status progress.Status) error {
	return s.writeFrame(string(EnvelopeComplete), "", 0, CompleteEnvelope{JobID: jobID, Status: string(status)})
}

func (s *sseSender) SendError(ctx context.Context, message string, retryMs int) error {
	return s.writeFrame(string(EnvelopeError), "", retryMs, ErrorEnvelope{Message: message, RetryMs: retryMs})
}

func (s *sseSender) SendKeepalive(ctx context.Context) error {
	return s.writeFrame(string(EnvelopeKeepalive), "", 1000, map[string]int64{"timestamp": time.Now().UnixMilli()})
}

// StreamHandlerDeps are the collaborators StreamHandler is built over.
type StreamHandlerDeps struct {
	Broker   *broker.Broker
	Jobs     jobs.Repository
	Registry *Registry
	Log      zerolog.Logger
}

// StreamHandler implements GET /api/v1/jobs/{job_id}/progress/stream:
// the HTTP event-stream transport. Authorization, `Last-Event-ID`
// resumption, and filter parsing happen here; the replay/live loop
// itself is the shared Stream driver.
func StreamHandler(deps StreamHandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseJobID(w, r)
		if !ok {
			return
		}

		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		job, err := Authorize(r.Context(), deps.Jobs, claims, jobID)
		if err != nil {
			if err == jobs.ErrNotFound {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var lastEventID int64
		if raw := r.Header.Get("Last-Event-ID"); raw != "" {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				lastEventID = v
			}
		}
		filter := ParseFilter(r.URL.Query())

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sessionID := uuid.NewString()
		deps.Registry.Add(&SessionInfo{ID: sessionID, JobID: jobID, Transport: "sse"})
		defer deps.Registry.Remove(sessionID)

		sender := &sseSender{w: w, flusher: flusher}
		if err := sender.writeFrame(string(EnvelopeConnection), "", 0, ConnectionEnvelope{SessionID: sessionID, JobID: jobID}); err != nil {
			return
		}
		if job.Status != "" {
			_ = sender.writeFrame(string(EnvelopeStatus), "", 0, map[string]interface{}{"job_id": jobID, "status": job.Status, "progress": job.Progress})
		}

		if err := Stream(r.Context(), deps.Broker, jobID, lastEventID, filter, sender); err != nil {
			deps.Log.Debug().Err(err).Int64("job_id", jobID).Str("session_id", sessionID).Msg("event-stream session ended")
		}
	}
}

// SnapshotHandler implements GET /api/v1/jobs/{job_id}/progress: the
// non-streaming fallback for clients that cannot hold a long
// connection. With `include_recent` set, it also returns the last N
// cached events.
func SnapshotHandler(deps StreamHandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseJobID(w, r)
		if !ok {
			return
		}
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		job, err := Authorize(r.Context(), deps.Jobs, claims, jobID)
		if err != nil {
			if err == jobs.ErrNotFound {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		resp := map[string]interface{}{
			"job_id":   job.ID,
			"status":   job.Status,
			"progress": job.Progress,
		}

		if n, err := strconv.ParseInt(r.URL.Query().Get("include_recent"), 10, 64); err == nil && n > 0 {
			recent, err := deps.Broker.Recent(r.Context(), jobID, n)
			if err != nil {
				deps.Log.Warn().Err(err).Int64("job_id", jobID).Msg("recent events lookup failed")
			} else {
				resp["recent_events"] = recent
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("job_id")
	jobID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid job_id", http.StatusBadRequest)
		return 0, false
	}
	return jobID, true
}
