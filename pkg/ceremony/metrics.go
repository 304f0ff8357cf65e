package ceremony

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the prometheus collectors of the ceremony engine.
//
// A nil *Metrics records nothing.
type Metrics struct {
	started  *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	sendFail *prometheus.CounterVec
	duration *prometheus.HistogramVec
	live     prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "ceremony",
			Name:      "authorized_total",
			Help:      "Ceremonies authorized by the state chain",
		}, []string{"kind"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "ceremony",
			Name:      "outcomes_total",
			Help:      "Ceremony outcomes by result",
		}, []string{"kind", "result"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "ceremony",
			Name:      "dropped_messages_total",
			Help:      "Inbound peer messages dropped before reaching a stage",
		}, []string{"reason"}),
		sendFail: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: "transport",
			Name:      "send_failures_total",
			Help:      "Frames the transport refused to enqueue",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: "ceremony",
			Name:      "duration_seconds",
			Help:      "Time from authorization to outcome",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind", "result"}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Subsystem: "ceremony",
			Name:      "live",
			Help:      "Ceremonies in the registry which have not finished",
		}),
	}
}

func (m *Metrics) authorized(kind Kind) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) outcome(o *Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !o.Success() {
		result = "failure"
	}
	m.outcomes.WithLabelValues(o.Kind.String(), result).Inc()
	if elapsed > 0 {
		m.duration.WithLabelValues(o.Kind.String(), result).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) drop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) sendFailed(kind Kind) {
	if m == nil {
		return
	}
	m.sendFail.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) setLive(n int) {
	if m == nil {
		return
	}
	m.live.Set(float64(n))
}
