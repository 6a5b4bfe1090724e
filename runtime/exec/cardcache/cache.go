// Package cardcache stores group-by cardinalities keyed by work unit
// fingerprint so that later executions of the same unit skip estimation.
// Entries are write-once: a second Put with a different value leaves the
// original in place and returns ErrConflict.
package cardcache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrConflict = errors.New("cardinality cache conflict")

type metrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, backend string) metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"backend": backend}
	return metrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name:        "raexec_cardinality_cache_hits_total",
			Help:        "Number of hits for a cardinality cache lookup.",
			ConstLabels: labels,
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name:        "raexec_cardinality_cache_misses_total",
			Help:        "Number of misses for a cardinality cache lookup.",
			ConstLabels: labels,
		}),
	}
}
