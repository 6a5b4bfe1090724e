package exec

import (
	"github.com/brimdata/raexec/plan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recovery rungs as reported in the retries metric.
const (
	rungQueryCPU       = "query_cpu"
	rungStepCPU        = "step_cpu"
	rungInterop        = "interop"
	rungNDV            = "ndv"
	rungSingleFragment = "single_fragment"
	rungCPU            = "cpu"
	rungSlots          = "slots"
	rungTopN           = "topn"
)

type metrics struct {
	retries *prometheus.CounterVec
	steps   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &metrics{
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raexec_retries_total",
				Help: "Number of recovery attempts by rung.",
			},
			[]string{"rung"},
		),
		steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raexec_steps_total",
				Help: "Number of executed steps by operator.",
			},
			[]string{"op"},
		),
	}
}

func (m *metrics) retry(rung string) {
	m.retries.WithLabelValues(rung).Inc()
}

func (m *metrics) step(k plan.Kind) {
	m.steps.WithLabelValues(k.String()).Inc()
}
