// Package metrics holds the Prometheus collectors for the graph engine.
package metrics

import (
	"time"

	"peoplegraph/backend/internal/graph"
	apperrors "peoplegraph/backend/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "people_graph"

var (
	// QueryDuration tracks recommendation and traversal query latency.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of graph queries by query name",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"query"},
	)

	// QueryErrorsTotal counts failed queries by error kind.
	QueryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Total failed graph queries by query name and error kind",
		},
		[]string{"query", "kind"},
	)

	// QueryResults observes how many rows a ranking query returned.
	QueryResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of results returned per query",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		},
		[]string{"query"},
	)

	// MutationsTotal counts mutations by operation and outcome.
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total graph mutations by operation and result",
		},
		[]string{"op", "result"},
	)

	// Nodes is the current node count per variant.
	Nodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Current number of nodes by variant",
		},
		[]string{"variant"},
	)

	// Edges is the current edge count per type.
	Edges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Current number of edges by type",
		},
		[]string{"type"},
	)

	// HTTPRequestsTotal counts API requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveQuery records latency, result size and failure kind of one query.
func ObserveQuery(query string, start time.Time, results int, err error) {
	QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err != nil {
		QueryErrorsTotal.WithLabelValues(query, string(apperrors.KindOf(err))).Inc()
		return
	}
	QueryResults.WithLabelValues(query).Observe(float64(results))
}

// ObserveMutation counts one mutation outcome.
func ObserveMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperrors.KindOf(err))
	}
	MutationsTotal.WithLabelValues(op, result).Inc()
}

// SetGraphStats publishes node and edge counts.
func SetGraphStats(s graph.Stats) {
	Nodes.WithLabelValues(string(graph.VariantUser)).Set(float64(s.Users))
	Nodes.WithLabelValues(string(graph.VariantCompany)).Set(float64(s.Companies))
	Nodes.WithLabelValues(string(graph.VariantSkill)).Set(float64(s.Skills))
	for _, t := range graph.EdgeTypes {
		Edges.WithLabelValues(string(t)).Set(float64(s.Edges[t]))
	}
}
