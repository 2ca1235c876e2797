package refsync

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Items    *prometheus.CounterVec
	Runs     *prometheus.CounterVec
	Duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer, source string) *Metrics {
	m := &Metrics{
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "refsync_items_total",
			Help:        "Reference items seen by the synchronizer, by outcome.",
			ConstLabels: prometheus.Labels{"source": source},
		}, []string{"outcome"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "refsync_runs_total",
			Help:        "Synchronizer runs, by result.",
			ConstLabels: prometheus.Labels{"source": source},
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "refsync_run_duration_seconds",
			Help:        "Duration of synchronizer runs.",
			ConstLabels: prometheus.Labels{"source": source},
			Buckets:     prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Items, m.Runs, m.Duration)
	}
	return m
}
