// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the case pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and
//     timing data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems live in subpackages (prompush, datadog); the
//     rest of the codebase depends only on this interface.
//
// The primary use case is instrumentation of procedure runs (cases read,
// written, dropped, sustained failures) without coupling the dataset
// orchestrator to a specific metrics system.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b != nil {
		backend = b
	}
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// CountCases increments the per-dataset case counter for one stage of the
// pipeline. Stage is one of "read", "written", "dropped", "procedure".
func CountCases(dataset, stage string, n int64) {
	backend.IncCounter("caseflow_cases_total", float64(n), Labels{
		"dataset": dataset,
		"stage":   stage,
	})
}

// RecordProcedure records one completed procedure: its duration and whether
// it committed cleanly.
func RecordProcedure(dataset string, ok bool, d time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	lbls := Labels{"dataset": dataset, "status": status}
	backend.IncCounter("caseflow_procedures_total", 1, lbls)
	backend.ObserveHistogram("caseflow_procedure_duration_seconds", d.Seconds(), lbls)
}
