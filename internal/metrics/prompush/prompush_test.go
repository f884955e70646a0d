package prompush

import (
	"testing"

	"caseflow/internal/metrics"
)

/* TestNewBackendRequiresURL verifies an empty gateway URL is rejected. */
func TestNewBackendRequiresURL(t *testing.T) {
	if _, err := NewBackend("job", ""); err == nil {
		t.Fatalf("got nil error; want error for empty gateway URL")
	}
}

/* TestIncCounterKnownNames verifies the pipeline counters accumulate under
their labels without touching the gateway. */
func TestIncCounterKnownNames(t *testing.T) {
	b, err := NewBackend("job", "http://localhost:9091")
	if err != nil {
		t.Fatalf("got %v; want nil error", err)
	}

	b.IncCounter("caseflow_cases_total", 3, metrics.Labels{"dataset": "d", "stage": "read"})
	b.IncCounter("caseflow_procedures_total", 1, metrics.Labels{"dataset": "d", "status": "ok"})
	b.ObserveHistogram("caseflow_procedure_duration_seconds", 0.25, metrics.Labels{"dataset": "d", "status": "ok"})

	fams, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("got %v; want nil error from Gather", err)
	}
	got := map[string]bool{}
	for _, f := range fams {
		got[f.GetName()] = true
	}
	for _, want := range []string{
		"caseflow_cases_total",
		"caseflow_procedures_total",
		"caseflow_procedure_duration_seconds",
	} {
		if !got[want] {
			t.Fatalf("got families %v; want %q present", got, want)
		}
	}
}

/* TestIncCounterAdHocName verifies an unknown counter name is registered on
the fly rather than dropped. */
func TestIncCounterAdHocName(t *testing.T) {
	b, err := NewBackend("job", "http://localhost:9091")
	if err != nil {
		t.Fatalf("got %v; want nil error", err)
	}

	b.IncCounter("caseflow_retries_total", 2, nil)
	b.IncCounter("caseflow_retries_total", 1, nil)

	fams, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("got %v; want nil error from Gather", err)
	}
	for _, f := range fams {
		if f.GetName() != "caseflow_retries_total" {
			continue
		}
		if v := f.GetMetric()[0].GetCounter().GetValue(); v != 3 {
			t.Fatalf("got %v; want 3", v)
		}
		return
	}
	t.Fatalf("caseflow_retries_total not registered")
}
