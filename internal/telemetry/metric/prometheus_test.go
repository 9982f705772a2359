// Package metric provides Prometheus metrics for DotVault.
package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.TransfersBegun == nil {
		t.Error("TransfersBegun is nil")
	}
	if r.TransfersFailed == nil {
		t.Error("TransfersFailed is nil")
	}
	if r.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if r.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
}

func TestGlobal(t *testing.T) {
	r1 := Global()
	r2 := Global()
	if r1 != r2 {
		t.Error("Global() should return the same instance")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.TransfersBegun.Inc()
	r.TransfersFailed.WithLabelValues("AUTH_FAILED").Inc()
	r.RequestsTotal.WithLabelValues("POST", "/v1/transfers", "200").Inc()
	r.RequestDuration.WithLabelValues("POST", "/v1/transfers").Observe(0.042)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := string(body)

	for _, want := range []string{
		"dotvault_transfers_begun_total 1",
		`dotvault_transfers_failed_total{code="AUTH_FAILED"} 1`,
		`dotvault_http_requests_total{method="POST",route="/v1/transfers",status="200"} 1`,
		"dotvault_http_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
