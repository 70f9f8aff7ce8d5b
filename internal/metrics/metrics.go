// Package metrics is the Prometheus-backed implementation of the
// narrow Metrics interfaces internal/broker and internal/reporter define
// for themselves, plus audit counters and the admin-visible session and
// system gauges.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cncaiprojem/progressd/internal/fanout"
	"github.com/cncaiprojem/progressd/internal/progress"
)

// Metrics is the single Prometheus registry-backed collector shared by
// every component. job_id is deliberately never used as a label — it is
// unbounded cardinality — so broker/reporter methods that accept a
// jobID parameter (to satisfy their package's Metrics interface) simply
// ignore it here.
type Metrics struct {
	brokerPublished       prometheus.Counter
	brokerThrottled       prometheus.Counter
	brokerEventIDFallback prometheus.Counter
	brokerBackendErrors   *prometheus.CounterVec

	reporterEmitted       *prometheus.CounterVec
	reporterPublishFailed prometheus.Counter
	reporterQueueDropped  prometheus.Counter

	sessionsActive    prometheus.Gauge
	sessionsByJob     prometheus.Gauge
	sessionsConnected *prometheus.CounterVec

	auditAppends      prometheus.Counter
	auditAppendErrors prometheus.Counter
	auditVerifyFailed prometheus.Counter

	goroutines prometheus.Gauge
	memoryMB   prometheus.Gauge
	cpuPercent prometheus.Gauge

	startTime time.Time
	mu        sync.RWMutex
}

func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		brokerPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_broker_published_total",
			Help: "Progress messages admitted and fanned out by the broker.",
		}),
		brokerThrottled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_broker_throttled_total",
			Help: "Progress messages dropped by the broker's throttle gate.",
		}),
		brokerEventIDFallback: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_broker_event_id_fallback_total",
			Help: "Messages that reached the broker without a reporter-assigned event_id.",
		}),
		brokerBackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "progressd_broker_backend_errors_total",
			Help: "Backend (pub/sub or cache) operation failures, by operation.",
		}, []string{"op"}),

		reporterEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "progressd_reporter_emitted_total",
			Help: "Progress messages emitted by the reporter, by event_type.",
		}, []string{"event_type"}),
		reporterPublishFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_reporter_publish_failed_total",
			Help: "Reporter dispatches that failed to reach the broker.",
		}),
		reporterQueueDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_reporter_queue_dropped_total",
			Help: "Reporter dispatches dropped because the fire-and-forget queue was full.",
		}),

		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "progressd_sessions_active",
			Help: "Currently connected client fan-out sessions across both transports.",
		}),
		sessionsByJob: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "progressd_sessions_distinct_jobs",
			Help: "Distinct jobs with at least one connected session.",
		}),
		sessionsConnected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "progressd_sessions_connected_total",
			Help: "Sessions ever connected, by transport.",
		}, []string{"transport"}),

		auditAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_audit_appends_total",
			Help: "Audit chain entries successfully appended.",
		}),
		auditAppendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_audit_append_errors_total",
			Help: "Audit chain append calls that failed.",
		}),
		auditVerifyFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progressd_audit_verify_failed_total",
			Help: "Audit chain verify calls that found at least one violation.",
		}),

		goroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "progressd_goroutines",
			Help: "Number of live goroutines.",
		}),
		memoryMB: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "progressd_memory_heap_mb",
			Help: "Heap memory in use, in megabytes.",
		}),
		cpuPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "progressd_cpu_percent",
			Help: "Process CPU usage percentage, smoothed.",
		}),
	}
}

// --- internal/broker.Metrics ---

func (m *Metrics) IncBrokerPublished(jobID int64)       { m.brokerPublished.Inc() }
func (m *Metrics) IncBrokerThrottled(jobID int64)       { m.brokerThrottled.Inc() }
func (m *Metrics) IncBrokerEventIDFallback(jobID int64) { m.brokerEventIDFallback.Inc() }
func (m *Metrics) IncBrokerBackendError(op string)      { m.brokerBackendErrors.WithLabelValues(op).Inc() }

// --- internal/reporter.Metrics ---

func (m *Metrics) IncReporterEmitted(jobID int64, eventType progress.EventType) {
	m.reporterEmitted.WithLabelValues(string(eventType)).Inc()
}
func (m *Metrics) IncReporterPublishFailed(jobID int64) { m.reporterPublishFailed.Inc() }
func (m *Metrics) IncReporterQueueDropped(jobID int64)  { m.reporterQueueDropped.Inc() }

// --- audit counters (audit.Chain does not call these; code that calls the Chain records its outcomes here) ---

func (m *Metrics) IncAuditAppend()       { m.auditAppends.Inc() }
func (m *Metrics) IncAuditAppendError()  { m.auditAppendErrors.Inc() }
func (m *Metrics) IncAuditVerifyFailed() { m.auditVerifyFailed.Inc() }

// --- session tracking ---

// RecordSessionConnected should be called once per new session, from
// whichever transport accepted it.
func (m *Metrics) RecordSessionConnected(transport string) {
	m.sessionsConnected.WithLabelValues(transport).Inc()
}

// ObserveSessions refreshes the active-session gauges from the shared
// registry; called periodically by the system metrics collector loop.
func (m *Metrics) ObserveSessions(registry *fanout.Registry) {
	stats := registry.Stats()
	m.sessionsActive.Set(float64(stats.TotalSessions))
	m.sessionsByJob.Set(float64(len(stats.SessionsByJob)))
}

// --- system gauges ---

func (m *Metrics) UpdateGoroutinesCount(count int) { m.goroutines.Set(float64(count)) }
func (m *Metrics) UpdateMemoryUsage(bytes uint64)  { m.memoryMB.Set(float64(bytes) / 1024 / 1024) }
func (m *Metrics) UpdateCPUUsage(percent float64)  { m.cpuPercent.Set(percent) }

func (m *Metrics) GetUptime() time.Duration { return time.Since(m.startTime) }
