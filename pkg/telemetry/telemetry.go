package telemetry

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mawneychat_remote_requests_total",
			Help: "Remote chat API requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mawneychat_remote_request_duration_seconds",
			Help:    "Remote chat API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mawneychat_polls_total",
			Help: "Poll cycles by outcome (ok, error, skipped).",
		},
		[]string{"outcome"},
	)

	newMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mawneychat_new_messages_total",
		Help: "Unread messages discovered by polling.",
	})

	unread = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mawneychat_unread_messages",
		Help: "Current total unread messages for the signed-in user.",
	})

	sent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mawneychat_messages_sent_total",
		Help: "Messages sent by the signed-in user.",
	})

	outboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mawneychat_outbox_pending",
		Help: "Outbox operations waiting to be delivered.",
	})

	outboxOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mawneychat_outbox_ops_total",
			Help: "Outbox delivery attempts by op kind and outcome.",
		},
		[]string{"op", "outcome"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mawneychat_notifications_total",
			Help: "Notifications by outcome (scheduled, suppressed, failed, cancelled).",
		},
		[]string{"outcome"},
	)

	recoveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mawneychat_state_recoveries_total",
		Help: "Corrupted local chat lists wiped and reseeded.",
	})

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mawneychat_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		remoteRequests,
		remoteLatency,
		polls,
		newMessages,
		unread,
		sent,
		outboxPending,
		outboxOps,
		notifications,
		recoveries,
		heapAlloc,
	)
}

// ObserveRemote records one remote API call.
func ObserveRemote(endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	remoteRequests.WithLabelValues(endpoint, outcome).Inc()
	remoteLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func PollCompleted(outcome string) { polls.WithLabelValues(outcome).Inc() }

func NewMessages(n int) {
	if n > 0 {
		newMessages.Add(float64(n))
	}
}

func SetUnread(n int) { unread.Set(float64(n)) }

func MessageSent() { sent.Inc() }

func SetOutboxPending(n int) { outboxPending.Set(float64(n)) }

func OutboxAttempt(op, outcome string) { outboxOps.WithLabelValues(op, outcome).Inc() }

func Notification(outcome string) { notifications.WithLabelValues(outcome).Inc() }

func StateRecovered() { recoveries.Inc() }
