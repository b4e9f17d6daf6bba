package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return -1
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if got := len(m.Collectors()); got != 6 {
		t.Errorf("expected 6 collectors, got %d", got)
	}
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := NewMetrics().Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	if err := NewMetrics().Register(reg); err == nil {
		t.Error("second Register() should have returned an error")
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	m := NewMetrics()
	route := "/api/locations/{id}/photos"

	for range 3 {
		m.IncRateLimitRequests(route)
	}
	m.IncRateLimitBlocked(route)

	if got := counterValue(m.rateLimitRequests, route); got != 3 {
		t.Errorf("requests = %v, want 3", got)
	}
	if got := counterValue(m.rateLimitBlocked, route); got != 1 {
		t.Errorf("blocked = %v, want 1", got)
	}
}

func TestObserveHTTPRequest(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTPRequest("GET", "/api/view", "200", 0.05, 0, 512)
	m.ObserveHTTPRequest("GET", "/api/view", "200", 0.07, 0, 256)

	if got := counterValue(m.httpRequestsTotal, "GET", "/api/view", "200"); got != 2 {
		t.Errorf("requests total = %v, want 2", got)
	}
}
