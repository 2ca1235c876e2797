package outbox

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	DispatchedTotal *prometheus.CounterVec
	FailedTotal     *prometheus.CounterVec
	DeadTotal       *prometheus.CounterVec
	ReclaimedTotal  prometheus.Counter
	LagSeconds      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outbox_dispatched_total", Help: "Outbox entries acknowledged by the broker."},
			[]string{"destination"},
		),
		FailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outbox_failed_total", Help: "Failed outbox delivery attempts."},
			[]string{"destination"},
		),
		DeadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outbox_dead_total", Help: "Outbox entries moved to the dead-letter set."},
			[]string{"destination"},
		),
		ReclaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "outbox_reclaimed_total", Help: "In-flight entries returned to pending after their lease expired."},
		),
		LagSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "outbox_lag_seconds", Help: "Age in seconds of the oldest undelivered outbox entry."},
		),
	}
	if reg != nil {
		reg.MustRegister(m.DispatchedTotal, m.FailedTotal, m.DeadTotal, m.ReclaimedTotal, m.LagSeconds)
	}
	return m
}
