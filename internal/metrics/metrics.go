// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: transition (open/reuse/close), trigger (api/webhook)
	sessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxmeet_session_transitions_total",
			Help: "Meeting session state transitions by transition and trigger",
		},
		[]string{"transition", "trigger"},
	)

	queueEnqueueFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxmeet_queue_enqueue_failures_total",
			Help: "Transcription commands that could not be enqueued after the session state was committed",
		},
		[]string{"action"},
	)

	// Labels: action (start/stop), result (done/retry/dead)
	queueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxmeet_queue_jobs_total",
			Help: "Transcription jobs handled by the worker by outcome",
		},
		[]string{"action", "result"},
	)

	queueDeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxmeet_queue_dead_letters_total",
			Help: "Transcription jobs moved to the dead-letter state",
		},
		[]string{"action"},
	)

	transcriberStartLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neoxmeet_transcriber_start_lost_total",
			Help: "Start commands dead-lettered: the session is active but no live captions will follow",
		},
	)

	// Labels: step (probe/archive/normalize/transcribe/persist/broadcast)
	ingestStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neoxmeet_ingest_step_duration_seconds",
			Help:    "Audio ingestion step latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"step"},
	)

	archiveFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neoxmeet_archive_failures_total",
			Help: "Accepted uploads that could not be copied to the archive bucket",
		},
	)

	// Labels: event (caption/transcriber-status)
	broadcastFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxmeet_broadcast_failures_total",
			Help: "Room broadcasts that failed after the data was persisted",
		},
		[]string{"event"},
	)

	// Labels: capability (transcribe/summarize/translate/synthesize)
	providerBreakerOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxmeet_provider_breaker_open_total",
			Help: "Times a provider capability circuit breaker opened",
		},
		[]string{"capability"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neoxmeet_webhook_events_total",
			Help: "LiveKit webhook deliveries by event and outcome",
		},
		[]string{"event", "outcome"},
	)
)

func RecordSessionTransition(transition, trigger string) {
	sessionTransitionsTotal.WithLabelValues(transition, trigger).Inc()
}

func RecordEnqueueFailure(action string) {
	queueEnqueueFailuresTotal.WithLabelValues(action).Inc()
}

func RecordJob(action, result string) {
	queueJobsTotal.WithLabelValues(action, result).Inc()
}

// RecordDeadLetter counts a dead-lettered job. Lost start commands are also
// counted on their own so they can be alerted on.
func RecordDeadLetter(action string) {
	queueDeadLettersTotal.WithLabelValues(action).Inc()
	if action == "start" {
		transcriberStartLostTotal.Inc()
	}
}

func ObserveIngestStep(step string, started time.Time) {
	ingestStepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
}

func RecordArchiveFailure() {
	archiveFailuresTotal.Inc()
}

func RecordBroadcastFailure(event string) {
	broadcastFailuresTotal.WithLabelValues(event).Inc()
}

func RecordWebhookEvent(event, outcome string) {
	webhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

func RecordBreakerOpen(capability string) {
	providerBreakerOpenTotal.WithLabelValues(capability).Inc()
}
