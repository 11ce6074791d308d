package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratesync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	channelSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratesync",
			Name:      "channel_sync_total",
			Help:      "Channel push attempts by channel, feature and outcome.",
		},
		[]string{"channel", "feature", "status"},
	)

	otaIngests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratesync",
			Name:      "ota_ingest_total",
			Help:      "Inbound OTA bookings by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ratesync",
			Name:      "booking_conflicts_total",
			Help:      "Reservations rejected by the availability check.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, channelSyncs, otaIngests, bookingConflicts)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncChannelSync records one push attempt; status is "success" or "error".
func IncChannelSync(channel, feature, status string) {
	channelSyncs.WithLabelValues(channel, feature, status).Inc()
}

// IncIngest records one inbound booking; outcome is "accepted", "rejected" or
// "duplicate".
func IncIngest(channel, outcome string) {
	otaIngests.WithLabelValues(channel, outcome).Inc()
}

// IncConflict records one overlap rejection.
func IncConflict() {
	bookingConflicts.Inc()
}
