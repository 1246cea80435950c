package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpdesk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ConversationsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helpdesk_conversations_open",
		Help: "Number of conversations with a live synchronization session",
	})

	MessagesMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_messages_merged_total",
		Help: "Messages inserted into the timeline, by source",
	}, []string{"source"})

	MessagesDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_messages_deduplicated_total",
		Help: "Candidate messages already present in the timeline, by source",
	}, []string{"source"})

	StaleEventsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_stale_events_discarded_total",
		Help: "Events dropped because their conversation is no longer open",
	}, []string{"source"})

	SendAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_send_attempts_total",
		Help: "Send pipeline attempts, by kind (send, retry)",
	}, []string{"kind"})

	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_send_failures_total",
		Help: "Send attempts that ended errored, by cause (timeout, transport)",
	}, []string{"cause"})

	AssistantRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpdesk_assistant_request_duration_seconds",
		Help:    "Assistant invocation duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"status"})

	ConversationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_conversation_actions_total",
		Help: "Escalate and close requests, by action and status",
	}, []string{"action", "status"})

	PollPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_poll_passes_total",
		Help: "Poll reconciliation passes, by status",
	}, []string{"status"})

	PushReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_push_reconnects_total",
		Help: "Realtime channel reconnections",
	})
)
