// Package fanout implements the client-facing half of the fabric: the
// session state machine shared by the push-socket and event-stream
// transports, authorization against the job repository, and the
// replay-then-live delivery loop driven off the broker.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cncaiprojem/progressd/internal/auth"
	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/jobs"
	"github.com/cncaiprojem/progressd/internal/progress"
)

// State is one node of the session state machine: Connecting ->
// Authenticated -> Subscribed -> Streaming -> Closing -> Closed, with
// Rejected reachable from Connecting or Authenticated.
type State string

const (
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateSubscribed    State = "subscribed"
	StateStreaming     State = "streaming"
	StateClosing       State = "closing"
	StateClosed        State = "closed"
	StateRejected      State = "rejected"
)

var ErrUnauthorized = errors.New("fanout: job missing or caller not authorized")

// Authorize resolves jobID through repo and applies the fabric's one
// authorization rule: the authenticated subject must own the job or
// hold the admin role. Returns jobs.ErrNotFound when the job is missing
// and ErrUnauthorized when the caller may not see it, so callers can map
// them to 404 and 403.
func Authorize(ctx context.Context, repo jobs.Repository, claims *auth.Claims, jobID int64) (*jobs.Job, error) {
	job, err := repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("fanout: look up job %d: %w", jobID, err)
	}
	if !auth.IsAuthorizedForJob(claims, job.OwnerID) {
		return nil, ErrUnauthorized
	}
	return job, nil
}

// Sender is the transport-specific encode-and-write step. Stream calls
// it from a single goroutine per session; implementations do not need
// their own locking against concurrent Stream calls but must be safe
// to call from a different goroutine than the one driving replies to
// client control frames (e.g. a push-socket write pump).
type Sender interface {
	SendProgress(ctx context.Context, msg *progress.Message) error
	SendComplete(ctx context.Context, jobID int64, status progress.Status) error
	SendError(ctx context.Context, message string, retryMs int) error
	SendKeepalive(ctx context.Context) error
}

// Stream drives the Subscribed -> Streaming -> Closing portion of the
// session state machine: when lastEventID is positive it replays every
// cached message with event_id > lastEventID in ascending order (a zero
// lastEventID means no cursor and skips replay), then relays live broker
// events, applying filter identically to both. It returns when the
// context is cancelled, the job reaches a terminal status, or the
// broker subscription errors.
func Stream(ctx context.Context, br *broker.Broker, jobID, lastEventID int64, filter Filter, sender Sender) error {
	sub, err := br.Subscribe(ctx, jobID)
	if err != nil {
		_ = sender.SendError(ctx, "broker unavailable", RetryBrokerUnavailable)
		return fmt.Errorf("fanout: subscribe job %d: %w", jobID, err)
	}
	defer sub.Close()

	cursor := lastEventID
	if cursor > 0 {
		missed, err := br.GetMissed(ctx, jobID, cursor)
		if err != nil {
			_ = sender.SendError(ctx, "broker unavailable", RetryBrokerUnavailable)
			return fmt.Errorf("fanout: get missed for job %d: %w", jobID, err)
		}
		for _, msg := range missed {
			if !filter.Match(msg) {
				continue
			}
			if err := sender.SendProgress(ctx, msg); err != nil {
				return err
			}
			cursor = msg.EventID
			if msg.Status.IsTerminal() {
				return sender.SendComplete(ctx, jobID, msg.Status)
			}
		}
	}

	keepalive := time.NewTicker(KeepaliveInterval * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-sub.Messages():
			if !ok {
				_ = sender.SendError(ctx, "broker unavailable", RetryBrokerUnavailable)
				return fmt.Errorf("fanout: subscription closed for job %d", jobID)
			}
			msg, err := progress.Decode(raw)
			if err != nil {
				_ = sender.SendError(ctx, "malformed upstream message", RetryTransient)
				continue
			}
			if msg.EventID <= cursor || !filter.Match(msg) {
				continue
			}
			if err := sender.SendProgress(ctx, msg); err != nil {
				return err
			}
			cursor = msg.EventID
			if msg.Status.IsTerminal() {
				return sender.SendComplete(ctx, jobID, msg.Status)
			}

		case <-keepalive.C:
			if err := sender.SendKeepalive(ctx); err != nil {
				return err
			}
		}
	}
}
