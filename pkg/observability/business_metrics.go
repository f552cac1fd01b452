package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Subscription lifecycle metrics
	subscriptionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Total number of subscription lifecycle transitions",
		},
		[]string{"event"},
	)

	subscriptionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_by_state",
			Help: "Current number of subscriptions per lifecycle state",
		},
		[]string{"state"},
	)

	renewalBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renewal_batch_size",
			Help:    "Number of renewals processed per time advancement",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	notificationsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of lifecycle notifications published",
		},
		[]string{"result"},
	)

	virtualClockMillis = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "virtual_clock_millis",
			Help: "Current virtual clock reading in Unix milliseconds",
		},
	)
)

// RecordTransition counts one lifecycle transition by event name
func RecordTransition(event string) {
	subscriptionTransitionsTotal.WithLabelValues(event).Inc()
}

// SetSubscriptionsByState updates the per-state subscription gauge
func SetSubscriptionsByState(state string, count int) {
	subscriptionsByState.WithLabelValues(state).Set(float64(count))
}

// RecordRenewalBatch records the size of one renewal processing pass
func RecordRenewalBatch(size int) {
	renewalBatchSize.Observe(float64(size))
}

// RecordNotification counts one publish attempt by result
func RecordNotification(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	notificationsPublishedTotal.WithLabelValues(result).Inc()
}

// SetVirtualClock updates the virtual clock gauge
func SetVirtualClock(millis int64) {
	virtualClockMillis.Set(float64(millis))
}
