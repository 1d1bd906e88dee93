// Package metrics provides Prometheus metrics for the vidscribe pipeline.
// Label cardinality is bounded: no job ids or URLs in labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by outcome and processing mode.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_jobs_total",
		Help: "Total number of finished jobs, by outcome (success/failed/skipped) and processing mode (streaming/fallback/none).",
	}, []string{"outcome", "mode"})

	// JobRetriesTotal counts job requeues after a failed attempt.
	JobRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidscribe_job_retries_total",
		Help: "Total number of job retries scheduled with backoff.",
	})

	// PhaseDuration observes wall-clock time per coordinator phase.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidscribe_phase_duration_seconds",
		Help:    "Duration of coordinator phases.",
		Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
	}, []string{"phase"})

	// UploadAttemptsTotal counts object-store upload attempts by outcome.
	UploadAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_upload_attempts_total",
		Help: "Total number of object-store upload attempts, by outcome (ok/retried/failed/skipped).",
	}, []string{"outcome"})

	// TranscriptionChunksTotal counts PCM chunks submitted to the model.
	TranscriptionChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidscribe_transcription_chunks_total",
		Help: "Total number of streamed audio chunks transcribed.",
	})

	// QueueDepth tracks the number of jobs waiting in the pending list.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidscribe_queue_depth",
		Help: "Current number of jobs in the pending queue.",
	})

	// WebhookRequestsTotal counts intake webhook requests by HTTP status class.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_webhook_requests_total",
		Help: "Total number of webhook submissions, by result (queued/unauthorized/invalid/error).",
	}, []string{"result"})

	// StatusWriteFailuresTotal counts best-effort catalog status writes that failed.
	StatusWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidscribe_status_write_failures_total",
		Help: "Total number of failed best-effort status column writes.",
	})
)

// RecordJob increments the finished-jobs counter.
func RecordJob(outcome, mode string) {
	JobsTotal.WithLabelValues(outcome, mode).Inc()
}

// RecordRetry increments the retry counter.
func RecordRetry() {
	JobRetriesTotal.Inc()
}

// ObservePhase records the duration of one coordinator phase.
func ObservePhase(phase string, seconds float64) {
	PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordUploadAttempt increments the upload attempt counter.
func RecordUploadAttempt(outcome string) {
	UploadAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordChunk increments the streamed chunk counter.
func RecordChunk() {
	TranscriptionChunksTotal.Inc()
}

// RecordWebhook increments the webhook result counter.
func RecordWebhook(result string) {
	WebhookRequestsTotal.WithLabelValues(result).Inc()
}

// RecordStatusWriteFailure increments the best-effort status write failure counter.
func RecordStatusWriteFailure() {
	StatusWriteFailuresTotal.Inc()
}
