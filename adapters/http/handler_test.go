package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/artpar/wakeacct/adapters/clock"
	apihttp "github.com/artpar/wakeacct/adapters/http"
	"github.com/artpar/wakeacct/adapters/idgen"
	"github.com/artpar/wakeacct/adapters/metrics"
	"github.com/artpar/wakeacct/app"
	"github.com/artpar/wakeacct/domain/wakelock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type testServer struct {
	router   http.Handler
	registry *app.Registry
	clock    *clock.Fake
	metrics  *metrics.Collector
	promReg  *prometheus.Registry
}

type failingChecker struct{}

func (failingChecker) HealthCheck(context.Context) error { return errors.New("shutting down") }

func setupTestServer(t *testing.T, checker apihttp.HealthChecker) *testServer {
	t.Helper()

	promReg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(promReg)
	clk := clock.NewFake(0)
	reg := app.NewRegistry(app.RegistryDeps{
		Clock:    clk,
		IDGen:    idgen.NewSequential("report-"),
		Observer: m,
		Logger:   zerolog.Nop(),
	}, app.RegistryConfig{Histogram: wakelock.DefaultHistogramConfig()})
	promReg.MustRegister(metrics.NewStatsCollector(reg))

	stats := apihttp.NewStatsHandler(reg, reg, clk, zerolog.Nop())
	router := apihttp.NewRouter(stats, apihttp.NewHealthHandler(checker), zerolog.Nop(), apihttp.RouterConfig{
		Version:        "1.2.3",
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	})

	return &testServer{router: router, registry: reg, clock: clk, metrics: m, promReg: promReg}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t, nil)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := s.do(t, "GET", path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestHealth_NotReady(t *testing.T) {
	s := setupTestServer(t, failingChecker{})

	rec := s.do(t, "GET", "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "shutting down" {
		t.Errorf("body = %v", body)
	}
}

func TestVersion(t *testing.T) {
	s := setupTestServer(t, nil)

	body := decodeBody(t, s.do(t, "GET", "/version", ""))
	if body["version"] != "1.2.3" || body["service"] != "wakeacct" {
		t.Errorf("body = %v", body)
	}
}

func TestIngestAndReport(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := s.do(t, "POST", "/api/v1/events", `[
		{"type":"start","client":"com.example.a","kind":1,"token":1,"outstanding":1,"at_ms":0},
		{"type":"start","client":"com.example.b","kind":2,"token":1,"outstanding":2,"at_ms":100},
		{"type":"stop","client":"com.example.a","kind":1,"token":1,"outstanding":1,"at_ms":300}
	]`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, body %s", rec.Code, rec.Body.String())
	}

	s.clock.Set(400)
	rec = s.do(t, "GET", "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	body := decodeBody(t, rec)

	meta := body["meta"].(map[string]any)
	if meta["report_id"] != "report-1" || meta["taken_at_ms"] != float64(400) {
		t.Errorf("meta = %v", meta)
	}
	totals := meta["totals"].(map[string]any)
	// every held millisecond is attributed exactly once
	if totals["cumulative_attributed_time_ms"] != float64(400) {
		t.Errorf("totals = %v", totals)
	}

	data := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(data))
	}
	a := data[0].(map[string]any)
	if a["id"] != "com.example.a" || a["type"] != "client_stats" {
		t.Errorf("data[0] = %v", a)
	}
	if got := a["attributes"].(map[string]any)["completed_attributed_time_ms"]; got != float64(200) {
		t.Errorf("a completed_attributed_time_ms = %v, want 200", got)
	}
}

func TestIngest_StampsMissingTime(t *testing.T) {
	s := setupTestServer(t, nil)
	s.clock.Set(1000)

	rec := s.do(t, "POST", "/api/v1/events", `[{"type":"start","client":"a","kind":1,"token":1,"outstanding":1}]`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	s.clock.Set(1250)
	if got := s.registry.ClientStats("a").PendingAttributedTimeMs; got != 250 {
		t.Errorf("PendingAttributedTimeMs = %d, want 250", got)
	}
}

func TestIngest_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"empty", "", http.StatusBadRequest},
		{"not an array", `{"type":"start"}`, http.StatusBadRequest},
		{"unknown type", `[{"type":"pause","client":"a"}]`, http.StatusUnprocessableEntity},
		{"missing client", `[{"type":"start"},{"type":"stop_all"}]`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, nil)
			rec := s.do(t, "POST", "/api/v1/events", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if n := len(s.registry.ClientIDs()); n != 0 {
				t.Errorf("rejected batch registered %d clients", n)
			}
		})
	}
}

func TestGetClient(t *testing.T) {
	s := setupTestServer(t, nil)
	s.registry.StartTracking("com.example.a", 3, 9, 1, 0)
	s.clock.Set(50)

	rec := s.do(t, "GET", "/api/v1/stats/clients/com.example.a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	attrs := decodeBody(t, rec)["data"].(map[string]any)["attributes"].(map[string]any)
	if attrs["pending_request_count"] != float64(1) || attrs["pending_attributed_time_ms"] != float64(50) {
		t.Errorf("attributes = %v", attrs)
	}

	rec = s.do(t, "GET", "/api/v1/stats/clients/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown client status = %d, want 404", rec.Code)
	}
	if ids := s.registry.ClientIDs(); len(ids) != 1 {
		t.Errorf("lookup registered a client: %v", ids)
	}
}

func TestListClients_Empty(t *testing.T) {
	s := setupTestServer(t, nil)

	body := decodeBody(t, s.do(t, "GET", "/api/v1/stats/clients", ""))
	if data, ok := body["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("data = %#v, want []", body["data"])
	}
}

func TestDump(t *testing.T) {
	s := setupTestServer(t, nil)
	s.registry.StartTracking("com.example.a", 3, 9, 1, 0)

	rec := s.do(t, "GET", "/api/v1/dump", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "wakelock clients") || !strings.Contains(out, "com.example.a") {
		t.Errorf("dump = %q", out)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)
	s.registry.StartTracking("com.example.a", 3, 9, 1, 0)
	s.do(t, "GET", "/api/v1/stats/clients", "")

	rec := s.do(t, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, name := range []string{
		"wakeacct_requests_started_total",
		"wakeacct_client_pending_requests",
		"wakeacct_http_request_duration_seconds",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}

	if got := testutil.ToFloat64(s.metrics.HTTPRequestsInFlight); got != 0 {
		t.Errorf("in-flight = %v after requests finished", got)
	}
}
