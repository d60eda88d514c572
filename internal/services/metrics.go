package services

import "github.com/prometheus/client_golang/prometheus"

var (
	reminderDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_dispatch_total",
			Help: "Reminder deliveries by result.",
		},
		[]string{"result"}, // sent|failed|lost
	)
	outboxDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatch_total",
			Help: "Outbox deliveries by result.",
		},
		[]string{"result"}, // sent|retry|failed|lost
	)
	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_sweep_duration_seconds",
			Help:    "Duration of dispatcher sweeps.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
	outboxDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_messages",
			Help: "Outbox messages by status after the last sweep.",
		},
		[]string{"status"},
	)
	subscriptionsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "push_subscriptions_pruned_total",
			Help: "Push subscriptions removed after a 404/410 from the push service.",
		},
	)
)

func init() {
	prometheus.MustRegister(reminderDispatchTotal, outboxDispatchTotal, sweepDuration, outboxDepth, subscriptionsPruned)
}
