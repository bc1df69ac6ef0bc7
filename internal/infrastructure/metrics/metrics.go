package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openchat",
			Subsystem: "chat_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Submission counters
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openchat",
			Subsystem: "chat_api",
			Name:      "submissions_total",
			Help:      "Total chat submissions by kind",
		},
		[]string{"kind"},
	)

	// Stream chunks applied to assistant placeholders
	StreamChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "openchat",
			Subsystem: "chat_api",
			Name:      "stream_chunks_total",
			Help:      "Total streamed chunks relayed into messages",
		},
	)

	// Collaborator failures (completion, memory, filedesc, transcription, persistence)
	CollaboratorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openchat",
			Subsystem: "chat_api",
			Name:      "collaborator_errors_total",
			Help:      "Total collaborator call failures",
		},
		[]string{"collaborator"},
	)

	// Threads
	ThreadsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "openchat",
			Subsystem: "chat_api",
			Name:      "threads_created_total",
			Help:      "Total threads created",
		},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "openchat",
			Subsystem: "chat_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)
