// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for upstream requests.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeThrottled   = "throttled"
)

// Cache tiers and lookup results.
const (
	TierRedis  = "redis"
	TierMemory = "memory"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	// SourceRequests counts upstream calls by source and outcome
	SourceRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearpulse",
		Name:      "source_requests_total",
		Help:      "Upstream data source requests by outcome.",
	}, []string{"source", "outcome"})

	// SourceDuration observes upstream call latency
	SourceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nearpulse",
		Name:      "source_request_duration_seconds",
		Help:      "Upstream data source request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	// CacheLookups counts cache reads per tier
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearpulse",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by tier and result.",
	}, []string{"tier", "result"})

	// ActivitiesClassified counts produced activity records by kind
	ActivitiesClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearpulse",
		Name:      "activities_classified_total",
		Help:      "Activity records produced by the classifier.",
	}, []string{"kind"})

	// HTTPDuration observes API request latency
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nearpulse",
		Name:      "http_request_duration_seconds",
		Help:      "API request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers every collector with the default registry.
// Safe to call more than once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		Register(prometheus.DefaultRegisterer)
	})
}

// Register adds the collectors to reg, panicking on conflict
func Register(reg prometheus.Registerer) {
	reg.MustRegister(SourceRequests, SourceDuration, CacheLookups, ActivitiesClassified, HTTPDuration)
}
