package messaging

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lessonnotify"

var (
	outboxSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "entries",
			Help:      "Number of outbox entries by status",
		},
		[]string{"status"},
	)

	dispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "entries_total",
			Help:      "Outbox entries processed by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	dispatchSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_duration_seconds",
			Help:      "Time spent in one provider send attempt",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	dispatchClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "claimed_total",
			Help:      "Outbox entries claimed for processing (before send attempt)",
		},
	)

	smsSegments = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "sms_segments_total",
			Help:      "SMS segments submitted to the provider",
		},
	)
)

// recordDispatchOutcome records one processed entry's outcome.
func recordDispatchOutcome(channel, outcome string) {
	dispatchOutcomes.WithLabelValues(channel, outcome).Inc()
}

// recordSendDuration records the duration of one provider send attempt.
func recordSendDuration(channel string, d time.Duration) {
	dispatchSendDuration.WithLabelValues(channel).Observe(d.Seconds())
}

// recordClaimed records the number of entries claimed in a tick.
func recordClaimed(n int) {
	dispatchClaimed.Add(float64(n))
}

// RecordSMSSegments counts message segments submitted to the SMS
// provider. Called by the SMS sender.
func RecordSMSSegments(n int) {
	smsSegments.Add(float64(n))
}

// RecordOutboxStats updates outbox size metrics.
func RecordOutboxStats(stats *OutboxStats) {
	outboxSize.WithLabelValues("pending").Set(float64(stats.Pending))
	outboxSize.WithLabelValues("processing").Set(float64(stats.Processing))
	outboxSize.WithLabelValues("sent").Set(float64(stats.Sent))
	outboxSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
