// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RatingMutations counts rating writes by operation (submit, update, delete).
	RatingMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerrank",
		Name:      "rating_mutations_total",
		Help:      "Number of rating mutations applied, by operation.",
	}, []string{"op"})

	// AggregateRecomputes counts full aggregate recomputations.
	AggregateRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peerrank",
		Name:      "aggregate_recomputes_total",
		Help:      "Number of per-target aggregate recomputations.",
	})
)
