// Package reporter implements the worker-side producer of progress
// messages: monotonic per-job event IDs, throttle-bypassing milestones,
// operation contexts with guaranteed release, and task-state mirroring.
package reporter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/progress"
)

// Publisher is the narrow broker surface the reporter depends on.
type Publisher interface {
	Publish(ctx context.Context, msg *progress.Message, force bool) (broker.PublishResult, error)
}

// Metrics is the reporter's counter surface; internal/metrics implements it.
type Metrics interface {
	IncReporterEmitted(jobID int64, eventType progress.EventType)
	IncReporterPublishFailed(jobID int64)
	IncReporterQueueDropped(jobID int64)
}

type noopMetrics struct{}

func (noopMetrics) IncReporterEmitted(int64, progress.EventType) {}
func (noopMetrics) IncReporterPublishFailed(int64)               {}
func (noopMetrics) IncReporterQueueDropped(int64)                {}

// publishQueueSize bounds the fire-and-forget dispatch channel so a
// stalled broker cannot turn into unbounded worker-side memory growth;
// beyond this the reporter drops and logs, since progress delivery is
// advisory rather than durable.
const publishQueueSize = 256

const dispatchTimeout = 2 * time.Second

// Reporter is the sole writer of one job's event_id sequence and
// operation stack: both fields below are single-writer and
// deliberately unlocked.
type Reporter struct {
	jobID   int64
	taskID  string
	pub     Publisher
	sink    TaskStateSink
	metrics Metrics
	log     zerolog.Logger

	eventSeq int64
	stack    []*OperationHandle

	publishCh chan publishJob
}

type publishJob struct {
	msg   *progress.Message
	force bool
}

// Option configures a Reporter at construction time.
type Option func(*Reporter)

func WithTaskStateSink(sink TaskStateSink) Option {
	return func(r *Reporter) { r.sink = sink }
}

func WithMetrics(m Metrics) Option {
	return func(r *Reporter) { r.metrics = m }
}

// New builds a Reporter for one job/task. Callers MUST call Close when
// the job finishes so the dispatch goroutine exits.
func New(jobID int64, taskID string, pub Publisher, log zerolog.Logger, opts ...Option) *Reporter {
	r := &Reporter{
		jobID:     jobID,
		taskID:    taskID,
		pub:       pub,
		sink:      noopTaskStateSink{},
		metrics:   noopMetrics{},
		log:       log.With().Int64("job_id", jobID).Str("component", "reporter").Logger(),
		publishCh: make(chan publishJob, publishQueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.dispatchLoop()
	return r
}

// Close stops the dispatch goroutine once the channel drains. It does
// not block on in-flight publishes.
func (r *Reporter) Close() {
	close(r.publishCh)
}

func (r *Reporter) dispatchLoop() {
	for job := range r.publishCh {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		_, err := r.pub.Publish(ctx, job.msg, job.force)
		cancel()
		if err != nil {
			r.metrics.IncReporterPublishFailed(r.jobID)
			r.log.Warn().Err(err).Msg("broker publish failed; progress is advisory, continuing")
		}
	}
}

// nextEventID is the monotonic per-job counter.
func (r *Reporter) nextEventID() int64 {
	r.eventSeq++
	return r.eventSeq
}

// emit derives, mirrors to the task-state sink, and dispatches msg
// without blocking worker code on broker I/O.
func (r *Reporter) emit(msg *progress.Message, force bool) {
	derived := progress.Derive(msg)
	r.metrics.IncReporterEmitted(r.jobID, derived.EventType)
	r.mirrorTaskState(derived)

	select {
	case r.publishCh <- publishJob{msg: derived, force: force}:
	default:
		r.metrics.IncReporterQueueDropped(r.jobID)
		r.log.Warn().Msg("publish queue full; dropping progress event")
	}
}

func (r *Reporter) mirrorTaskState(msg *progress.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.sink.SetState(ctx, r.taskID, "PROGRESS", msg); err != nil {
		r.log.Warn().Err(err).Msg("task-state mirror failed")
	}
}

// Report emits a generic progress_update event.
func (r *Reporter) Report(progressPct *int, message string, milestone bool) {
	msg := &progress.Message{
		JobID:       r.jobID,
		EventID:     r.nextEventID(),
		Timestamp:   time.Now().UTC(),
		EventType:   progress.EventProgressUpdate,
		ProgressPct: progressPct,
		Message:     message,
		Milestone:   milestone,
	}
	r.emit(msg, milestone)
}

func i64(v int64) *int64 { return &v }
