// Package broker implements the pub/sub + bounded ordered cache +
// throttle sitting between the worker reporter and client fan-out.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/progress"
)

// ThrottleInterval is the minimum spacing between non-milestone
// publishes for a given job.
const ThrottleInterval = 500 * time.Millisecond

// CacheSize is the number of most-recent events kept per job.
const CacheSize = 1000

// CacheTTLSeconds is the whole-stream TTL refreshed on every publish.
const CacheTTLSeconds = 3600

// PublishResult reports whether a publish was admitted or dropped by
// the throttle gate.
type PublishResult int

const (
	Published PublishResult = iota
	Throttled
)

func (r PublishResult) String() string {
	if r == Published {
		return "published"
	}
	return "throttled"
}

// Metrics is the narrow counter surface the broker reports through;
// internal/metrics implements it. Kept as an interface here so this
// package never imports the metrics package.
type Metrics interface {
	IncBrokerPublished(jobID int64)
	IncBrokerThrottled(jobID int64)
	IncBrokerEventIDFallback(jobID int64)
	IncBrokerBackendError(op string)
}

type noopMetrics struct{}

func (noopMetrics) IncBrokerPublished(int64)        {}
func (noopMetrics) IncBrokerThrottled(int64)        {}
func (noopMetrics) IncBrokerEventIDFallback(int64)  {}
func (noopMetrics) IncBrokerBackendError(string)    {}

// Broker is the process-local façade over Backend. One Broker is shared
// per API/worker process.
type Broker struct {
	backend Backend
	log     zerolog.Logger
	metrics Metrics

	mu            sync.Mutex
	lastPublished map[int64]time.Time
	fallbackSeq   map[int64]int64
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithMetrics attaches a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// New builds a Broker over backend.
func New(backend Backend, log zerolog.Logger, opts ...Option) *Broker {
	b := &Broker{
		backend:       backend,
		log:           log.With().Str("component", "broker").Logger(),
		metrics:       noopMetrics{},
		lastPublished: make(map[int64]time.Time),
		fallbackSeq:   make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish admits msg per the throttle rule, and on admission appends it
// to the job's cached stream, fans it out to subscribers, trims the
// cache, and refreshes its TTL.
func (b *Broker) Publish(ctx context.Context, msg *progress.Message, force bool) (PublishResult, error) {
	if msg.EventID == 0 {
		msg.EventID = b.assignFallbackEventID(msg.JobID)
		b.metrics.IncBrokerEventIDFallback(msg.JobID)
		b.log.Warn().Int64("job_id", msg.JobID).Msg("broker assigned event_id; reporter should be the sole assigner")
	}

	if !force && !msg.Milestone && b.shouldThrottle(msg.JobID) {
		b.metrics.IncBrokerThrottled(msg.JobID)
		return Throttled, nil
	}
	b.markPublished(msg.JobID)

	data, err := progress.Encode(msg)
	if err != nil {
		return Throttled, fmt.Errorf("broker: encode message: %w", err)
	}

	cacheKey := CacheKey(msg.JobID)
	if err := b.backend.CacheAppend(ctx, cacheKey, float64(msg.EventID), data); err != nil {
		b.metrics.IncBrokerBackendError("cache_append")
		return Throttled, fmt.Errorf("broker: cache append: %w", err)
	}
	if err := b.backend.CacheTrim(ctx, cacheKey, CacheSize); err != nil {
		b.metrics.IncBrokerBackendError("cache_trim")
		b.log.Warn().Err(err).Int64("job_id", msg.JobID).Msg("cache trim failed")
	}
	if err := b.backend.CacheExpire(ctx, cacheKey, CacheTTLSeconds); err != nil {
		b.metrics.IncBrokerBackendError("cache_expire")
		b.log.Warn().Err(err).Int64("job_id", msg.JobID).Msg("cache expire failed")
	}

	channel := ChannelName(msg.JobID)
	if err := b.backend.Publish(ctx, channel, data); err != nil {
		b.metrics.IncBrokerBackendError("publish")
		return Throttled, fmt.Errorf("broker: publish: %w", err)
	}
	if err := b.backend.Publish(ctx, WildcardChannel, data); err != nil {
		b.metrics.IncBrokerBackendError("publish_wildcard")
		b.log.Warn().Err(err).Msg("wildcard publish failed")
	}

	b.metrics.IncBrokerPublished(msg.JobID)
	return Published, nil
}

// Subscribe opens a scoped receive path for one job's channel. Callers
// must Close the returned Subscription on every exit path.
func (b *Broker) Subscribe(ctx context.Context, jobID int64) (Subscription, error) {
	sub, err := b.backend.Subscribe(ctx, ChannelName(jobID))
	if err != nil {
		b.metrics.IncBrokerBackendError("subscribe")
		return nil, fmt.Errorf("broker: subscribe job %d: %w", jobID, err)
	}
	return sub, nil
}

// GetMissed returns cached messages for jobID with event_id strictly
// greater than sinceEventID, in ascending order. Best-effort beyond the
// cache's TTL/size bound.
func (b *Broker) GetMissed(ctx context.Context, jobID, sinceEventID int64) ([]*progress.Message, error) {
	raw, err := b.backend.CacheRangeByScore(ctx, CacheKey(jobID), float64(sinceEventID))
	if err != nil {
		b.metrics.IncBrokerBackendError("range_by_score")
		return nil, fmt.Errorf("broker: get missed for job %d: %w", jobID, err)
	}
	return decodeAll(raw)
}

// Recent returns the newest count cached messages for jobID, newest
// first, for snapshot fallback.
func (b *Broker) Recent(ctx context.Context, jobID, count int64) ([]*progress.Message, error) {
	raw, err := b.backend.CacheRevRange(ctx, CacheKey(jobID), count)
	if err != nil {
		b.metrics.IncBrokerBackendError("rev_range")
		return nil, fmt.Errorf("broker: recent for job %d: %w", jobID, err)
	}
	return decodeAll(raw)
}

func decodeAll(raw [][]byte) ([]*progress.Message, error) {
	out := make([]*progress.Message, 0, len(raw))
	for _, b := range raw {
		msg, err := progress.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("broker: decode cached message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (b *Broker) shouldThrottle(jobID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, ok := b.lastPublished[jobID]
	if !ok {
		return false
	}
	return time.Since(last) < ThrottleInterval
}

func (b *Broker) markPublished(jobID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPublished[jobID] = time.Now()
}

// assignFallbackEventID is the legacy fallback path: the reporter is the
// sole authoritative assigner, but a message arriving with EventID==0
// still needs one so the cache stays ordered.
func (b *Broker) assignFallbackEventID(jobID int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallbackSeq[jobID]++
	return b.fallbackSeq[jobID]
}
