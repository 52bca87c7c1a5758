package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_dispatch"

// Dispatch outcomes used as the "outcome" label.
const (
	OutcomeMatched      = "matched"
	OutcomeNoCandidates = "no_candidates"
	OutcomeNoCapacity   = "no_capacity"
	OutcomeError        = "error"
)

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_total", Help: "Dispatch attempts by outcome"},
		[]string{"outcome"},
	)
	DispatchLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "dispatch_latency_seconds", Help: "Dispatch latency seconds"})
	CandidateDrivers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "candidate_drivers", Help: "Candidates found by the last dispatch"})
	SurgeMultiplier  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "surge_multiplier", Help: "Surge multiplier of the last quote"})

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "status_transitions_total", Help: "Ride status transitions by result"},
		[]string{"to", "result"},
	)
	LocationUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_updates_total", Help: "Driver location updates by result"},
		[]string{"result"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "api_requests_total", Help: "Dispatch API requests by route and response code"},
		[]string{"method", "route", "code"},
	)
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Dispatch API latency by route and response code",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route", "code"},
	)
)
