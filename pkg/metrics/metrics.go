package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Packet counters, required by the Stats invariant: strictly one increment per
	// packet sent/accepted.
	PacketsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_packets_sent_total",
			Help: "Total number of packets published to the transporter, by command",
		},
		[]string{"command"},
	)

	PacketsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_packets_received_total",
			Help: "Total number of packets accepted from the transporter, by command",
		},
		[]string{"command"},
	)

	PacketsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_packets_dropped_total",
			Help: "Total number of inbound packets dropped, by reason",
		},
		[]string{"reason"},
	)

	PendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transit_pending_requests",
			Help: "Current number of outbound requests awaiting a response",
		},
	)

	QueueFullTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_queue_full_total",
			Help: "Total number of outbound requests rejected because the pending queue was full",
		},
	)

	RequestsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_requests_rejected_total",
			Help: "Total number of outbound requests dropped from the pending table because their REQUEST could not be published",
		},
	)

	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transit_connected",
			Help: "Whether this node's Transit is connected (1) or not (0)",
		},
	)

	HandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transit_handshake_duration_seconds",
			Help:    "Time from the start of the post-connect handshake (after the transporter connected) to declaring Connected",
			Buckets: prometheus.DefBuckets,
		},
	)

	PingRoundTrip = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transit_ping_round_trip_seconds",
			Help:    "Observed PING/PONG round-trip time to peers",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_reconnect_attempts_total",
			Help: "Total number of reconnect attempts made by the lifecycle controller",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PacketsSent,
		PacketsReceived,
		PacketsDropped,
		PendingRequests,
		QueueFullTotal,
		RequestsRejectedTotal,
		ConnectionState,
		HandshakeDuration,
		PingRoundTrip,
		ReconnectAttemptsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
