// Package metrics exposes faucet counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faucetd/faucet"
	"github.com/faucetd/faucet/auth"
)

const namespace = "faucet"

// Metrics owns a registry and the faucet collectors.
type Metrics struct {
	registry *prometheus.Registry

	grants        *prometheus.CounterVec
	grantDuration prometheus.Histogram
	authResults   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		grants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grants_total",
				Help:      "Grant attempts by outcome.",
			},
			[]string{"outcome"},
		),
		grantDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grant_duration_seconds",
			Help:      "Duration of grant attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		authResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_results_total",
				Help:      "Authentication strategy verdicts.",
			},
			[]string{"strategy", "outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status.",
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.grants,
		m.grantDuration,
		m.authResults,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ServiceOptions returns grant hooks that record outcomes.
func (m *Metrics) ServiceOptions() []faucet.ServiceOption {
	return []faucet.ServiceOption{
		faucet.WithAfterGrantHook(func(ctx faucet.GrantResultContext) error {
			m.grants.WithLabelValues(string(ctx.Result.Status)).Inc()
			m.grantDuration.Observe(ctx.Duration.Seconds())
			return nil
		}),
		faucet.WithOnGrantFailureHook(func(ctx faucet.GrantFailureContext) error {
			outcome := faucet.ErrorCode(ctx.Error)
			if outcome == "" {
				outcome = "error"
			}
			m.grants.WithLabelValues(outcome).Inc()
			m.grantDuration.Observe(ctx.Duration.Seconds())
			return nil
		}),
	}
}

// ObserveAuth records the verdict of every strategy.
func (m *Metrics) ObserveAuth(results []auth.Result) {
	for _, result := range results {
		outcome := "error"
		switch {
		case result.OK():
			outcome = "success"
		case result.Rejected():
			outcome = "rejected"
		}
		m.authResults.WithLabelValues(string(result.Strategy), outcome).Inc()
	}
}

// ObserveRequest records a served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
