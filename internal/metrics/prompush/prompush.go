// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the pipeline labels (dataset, stage, status) onto Prometheus
//     labels.
//   - Pushing collected metrics to a Pushgateway instead of exposing a
//     scrape endpoint, since procedure runs are batch-shaped.
//
// All Prometheus-specific dependencies stay in this package so the rest of
// the project remains decoupled and can swap backends without changes.
package prompush

import (
	"fmt"

	"caseflow/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	caseCounter   *prometheus.CounterVec // caseflow_cases_total
	procCounter   *prometheus.CounterVec // caseflow_procedures_total
	procDuration  *prometheus.SummaryVec // caseflow_procedure_duration_seconds
	otherCounters map[string]prometheus.Counter
}

// NewBackend constructs a Pushgateway backend. jobName groups the pushed
// metrics on the gateway; gatewayURL is the base URL of the server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "caseflow"
	}

	reg := prometheus.NewRegistry()

	caseCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseflow_cases_total",
			Help: "Cases seen per dataset and pipeline stage (read, written, dropped, procedure).",
		},
		[]string{"dataset", "stage"},
	)
	procCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseflow_procedures_total",
			Help: "Completed procedures per dataset and commit status.",
		},
		[]string{"dataset", "status"},
	)
	procDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "caseflow_procedure_duration_seconds",
			Help:       "Duration of procedures in seconds, per dataset and commit status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"dataset", "status"},
	)

	for _, c := range []prometheus.Collector{caseCounter, procCounter, procDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		caseCounter:   caseCounter,
		procCounter:   procCounter,
		procDuration:  procDuration,
		otherCounters: map[string]prometheus.Counter{},
	}, nil
}

// IncCounter implements metrics.Backend. Known pipeline counters map onto
// their labeled collectors; anything else becomes an unlabeled counter so a
// new call site never drops data silently.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "caseflow_cases_total":
		b.caseCounter.WithLabelValues(labels["dataset"], labels["stage"]).Add(delta)
	case "caseflow_procedures_total":
		b.procCounter.WithLabelValues(labels["dataset"], labels["status"]).Add(delta)
	default:
		c, ok := b.otherCounters[name]
		if !ok {
			c = prometheus.NewCounter(prometheus.CounterOpts{
				Name: name,
				Help: "Ad hoc caseflow counter.",
			})
			if err := b.reg.Register(c); err != nil {
				return
			}
			b.otherCounters[name] = c
		}
		c.Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name == "caseflow_procedure_duration_seconds" {
		b.procDuration.WithLabelValues(labels["dataset"], labels["status"]).Observe(value)
	}
}

// Flush pushes everything collected so far to the gateway.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}
