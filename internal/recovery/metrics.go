package recovery

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus instruments exported by the recovery layer.
type Metrics struct {
	RetriesTotal     *prometheus.CounterVec
	DeadLettersTotal prometheus.Counter
	ReplaysTotal     prometheus.Counter
	RejectedTotal    *prometheus.CounterVec
	AlertsTotal      *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
}

// breaker state gauge values
const (
	gaugeClosed   = 0
	gaugeOpen     = 1
	gaugeHalfOpen = 2
)

// NewMetrics creates the recovery metric instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aromatch_recovery_retries_total",
				Help: "Total number of failed attempts observed by the retry handler, by category.",
			},
			[]string{"category"},
		),
		DeadLettersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aromatch_recovery_dead_letters_total",
				Help: "Total number of tasks moved to the dead letter queue.",
			},
		),
		ReplaysTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aromatch_recovery_dead_letter_replays_total",
				Help: "Total number of dead letter entries replayed as live tasks.",
			},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aromatch_recovery_breaker_rejections_total",
				Help: "Total number of calls rejected by an open circuit breaker, by resource.",
			},
			[]string{"resource"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aromatch_recovery_alerts_total",
				Help: "Total number of alerts dispatched, by severity.",
			},
			[]string{"severity"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aromatch_recovery_breaker_state",
				Help: "Current circuit breaker state per resource (0=closed, 1=open, 2=half-open).",
			},
			[]string{"resource"},
		),
	}
}

// MustRegister registers all instruments with the given registry.
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.RetriesTotal,
		m.DeadLettersTotal,
		m.ReplaysTotal,
		m.RejectedTotal,
		m.AlertsTotal,
		m.BreakerState,
	)
}

func (m *Metrics) observeBreakerState(resource string, state CircuitState) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case StateOpen:
		v = gaugeOpen
	case StateHalfOpen:
		v = gaugeHalfOpen
	default:
		v = gaugeClosed
	}
	m.BreakerState.WithLabelValues(resource).Set(v)
}
