// Package metrics exposes vault activity to Prometheus:
//
//	aegis_observations_total{kind}
//	aegis_total_assets
//	aegis_total_shares
//	aegis_pending_requests
//	aegis_insight_confidence
//	aegis_events_dropped_total
//	go_* and process_* system metrics
package metrics

import (
	"context"
	"net/http"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"AegisVault/internal/model"
)

// Source supplies live gauge values.
type Source interface {
	TotalAssets() sdkmath.Int
	TotalShares() sdkmath.Int
	PendingCount() int
}

// DropCounter reports observations lost by the event bus.
type DropCounter interface {
	Dropped() uint64
}

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry     *prometheus.Registry
	observations *prometheus.CounterVec
	confidence   prometheus.Histogram
	failures     prometheus.Counter
}

func New(src Source, drops DropCounter, assetDecimals int32) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		observations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_observations_total",
				Help: "Number of vault observations by kind",
			},
			[]string{"kind"},
		),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_insight_confidence",
			Help:    "Confidence of accepted advisory insights",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_oracle_failures_total",
			Help: "Number of oracle round trips that failed",
		}),
	}

	m.registry.MustRegister(m.observations, m.confidence, m.failures)
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aegis_total_assets",
			Help: "Assets held by the vault in whole units",
		}, func() float64 { return toUnits(src.TotalAssets(), assetDecimals) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aegis_total_shares",
			Help: "Shares outstanding in whole units",
		}, func() float64 { return toUnits(src.TotalShares(), assetDecimals) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aegis_pending_requests",
			Help: "Advisory requests awaiting an oracle answer",
		}, func() float64 { return float64(src.PendingCount()) }),
	)
	if drops != nil {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "aegis_events_dropped_total",
			Help: "Observations dropped because the event buffer was full",
		}, func() float64 { return float64(drops.Dropped()) }))
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Name() string { return "metrics" }

// Handle counts an observation.
func (m *Metrics) Handle(_ context.Context, obs model.Observation) error {
	m.observations.WithLabelValues(string(obs.Kind)).Inc()
	switch obs.Kind {
	case model.ObservationAIResponseReceived:
		m.confidence.Observe(float64(obs.Confidence))
	case model.ObservationAIRequestFailed:
		m.failures.Inc()
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func toUnits(v sdkmath.Int, decimals int32) float64 {
	if v.IsNil() {
		return 0
	}
	return decimal.NewFromBigInt(v.BigInt(), -decimals).InexactFloat64()
}
