package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSagaMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSagaMetrics(reg)

	metrics.IncStarted("buy_in")
	metrics.ObserveTransition("buy_in", "Compensating", false, 0)
	metrics.ObserveTransition("buy_in", "Compensated", true, 1500*time.Millisecond)
	metrics.IncInvocation("service-cta", "discovery", "failure")
	metrics.IncInvocation("service-cta", "mesh", "success")
	metrics.IncOutboxPublished("saga-buyin-init")
	metrics.IncOutboxFailed("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "saga_started_total", "flow", "buy_in"); err != nil {
		t.Fatalf("fetch started: %v", err)
	} else if got != 1 {
		t.Fatalf("expected started=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "saga_transitions_total", "status", "Compensated"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected compensated transitions=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "saga_duration_seconds", "status", "Compensated"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.5 {
		t.Fatalf("expected duration sum 1.5, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "saga_invocations_total", "transport", "mesh"); err != nil {
		t.Fatalf("fetch invocations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected mesh invocations=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "outbox_publish_failures_total", "topic", "unknown"); err != nil {
		t.Fatalf("fetch outbox failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}
}

func TestNilSagaMetricsAreNoops(t *testing.T) {
	var m *SagaMetrics
	m.IncStarted("generic")
	m.ObserveTransition("generic", "Completed", true, time.Second)
	m.IncInvocation("a", "b", "c")
	m.IncOutboxPublished("t")
	m.IncOutboxFailed("t")

	NewSagaMetrics(nil).IncStarted("generic")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
