package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObserveRecomputeNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(recomputesTotal.WithLabelValues(OutcomeSuccess, "rule_based"))
	ObserveRecompute(5*time.Millisecond, "weird", "rule_based")
	after := testutil.ToFloat64(recomputesTotal.WithLabelValues(OutcomeSuccess, "rule_based"))
	if after-before != 1 {
		t.Fatalf("expected success counter to increase by 1, got %v", after-before)
	}
}

func TestRedactionFailureCounter(t *testing.T) {
	before := testutil.ToFloat64(redactionFailuresTotal)
	ObserveRedactionFailure()
	if got := testutil.ToFloat64(redactionFailuresTotal) - before; got != 1 {
		t.Fatalf("expected 1 redaction failure, got %v", got)
	}
}

func TestSetCorrelations(t *testing.T) {
	SetCorrelations(4)
	if got := testutil.ToFloat64(correlationsGauge); got != 4 {
		t.Fatalf("expected gauge 4, got %v", got)
	}
}
