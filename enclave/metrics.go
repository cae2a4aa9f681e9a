package main

import (
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudx-io/sealedbid/core"
)

// hostMetrics counts requests and payouts handled by one host.
type hostMetrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	payouts       *prometheus.CounterVec
	payoutAmounts *prometheus.CounterVec
}

func newHostMetrics() *hostMetrics {
	m := &hostMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealedbid",
			Subsystem: "host",
			Name:      "requests_total",
			Help:      "Requests handled by the auction host segmented by type and outcome.",
		}, []string{"type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sealedbid",
			Subsystem: "host",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for auction host requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealedbid",
			Subsystem: "payout",
			Name:      "instructions_total",
			Help:      "Payout instructions journaled segmented by reason.",
		}, []string{"reason"}),
		payoutAmounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealedbid",
			Subsystem: "payout",
			Name:      "amount_total",
			Help:      "Base units journaled for payout segmented by reason. Approximate above 2^53.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.payouts, m.payoutAmounts)
	return m
}

// Outcomes recorded for a request.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

func (m *hostMetrics) observeRequest(requestType, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(requestType, outcome).Inc()
	m.latency.WithLabelValues(requestType).Observe(time.Since(started).Seconds())
}

func (m *hostMetrics) observePayout(reason core.PayoutReason, amount *uint256.Int) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(string(reason)).Inc()
	value, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	m.payoutAmounts.WithLabelValues(string(reason)).Add(value)
}

func (m *hostMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
