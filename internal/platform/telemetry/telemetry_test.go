package telemetry

import (
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestEcho(p *Provider) *echo.Echo {
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })
	e.GET("/metrics", p.PrometheusHandler())
	return e
}

func serve(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMetricsMiddleware_LabelsByRoutePattern(t *testing.T) {
	p := NewProvider(Config{})
	e := newTestEcho(p)

	serve(e, "/api/v1/patients/P001")
	serve(e, "/api/v1/patients/P002")
	serve(e, "/api/v1/patients/missing")

	if n := p.RequestCount("GET", "/api/v1/patients/:id", "200"); n != 2 {
		t.Errorf("expected 2 ok requests, got %d", n)
	}
	if n := p.RequestCount("GET", "/api/v1/patients/:id", "404"); n != 1 {
		t.Errorf("expected 1 not found request, got %d", n)
	}
	if n := p.RequestCount("GET", "/api/v1/patients/P001", "200"); n != 0 {
		t.Errorf("raw paths must not become labels, got %d", n)
	}
}

func TestMetricsMiddleware_ErrorsAndUnmatched(t *testing.T) {
	p := NewProvider(Config{})
	e := newTestEcho(p)

	serve(e, "/boom")
	serve(e, "/no/such/route")

	if n := p.RequestCount("GET", "/boom", "500"); n != 1 {
		t.Errorf("expected plain error recorded as 500, got %d", n)
	}
	if n := p.RequestCount("GET", "/no/such/route", "404"); n != 0 {
		t.Errorf("unmatched paths must not become labels, got %d", n)
	}
	if p.ActiveRequests() != 0 {
		t.Errorf("expected no requests in flight, got %d", p.ActiveRequests())
	}
}

func TestRecordSessionEvent(t *testing.T) {
	p := NewProvider(Config{})
	p.RecordSessionEvent("tab_selected", "applied")
	p.RecordSessionEvent("tab_selected", "applied")
	p.RecordSessionEvent("export_requested", "trigger")

	if n := p.SessionEvents("tab_selected", "applied"); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	if n := p.SessionEvents("export_requested", "trigger"); n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if n := p.SessionEvents("tab_selected", "rejected"); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestHistogram_CumulativeBuckets(t *testing.T) {
	h := newHistogram([]float64{0.1, 1, 10})
	for _, v := range []float64{0.05, 0.5, 0.5, 5, 50} {
		h.observe(v)
	}
	cum, count, sum := h.snapshot()
	want := []int64{1, 3, 4}
	for i := range want {
		if cum[i] != want[i] {
			t.Errorf("bucket %d: got %d, want %d", i, cum[i], want[i])
		}
	}
	if count != 5 {
		t.Errorf("expected count 5, got %d", count)
	}
	if math.Abs(sum-56.05) > 1e-9 {
		t.Errorf("expected sum 56.05, got %g", sum)
	}
}

func TestPrometheusHandler_Exposition(t *testing.T) {
	p := NewProvider(Config{ServiceName: "readmit-server", ServiceVersion: "1.2.3", Environment: "test"})
	live := 3
	p.RegisterGauge("readmit_sessions_live", "Live dashboard sessions.", func() float64 { return float64(live) })
	p.RecordSessionEvent("search_changed", "applied")
	e := newTestEcho(p)
	serve(e, "/api/v1/patients/P001")

	rec := serve(e, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`readmit_build_info{service="readmit-server",version="1.2.3",environment="test"} 1`,
		"# TYPE http_server_request_duration_seconds histogram",
		`http_server_request_duration_seconds_count{method="GET",route="/api/v1/patients/:id",status_code="200"} 1`,
		`http_server_request_duration_seconds_bucket{method="GET",route="/api/v1/patients/:id",status_code="200",le="+Inf"} 1`,
		"http_server_active_requests 1",
		`readmit_session_events_total{type="search_changed",outcome="applied"} 1`,
		"# TYPE readmit_sessions_live gauge",
		"readmit_sessions_live 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\n%s", want, body)
		}
	}

	live = 5
	if !strings.Contains(p.Expose(), "readmit_sessions_live 5") {
		t.Error("gauge should be read at scrape time")
	}
}

func TestExpose_StableOrder(t *testing.T) {
	p := NewProvider(Config{})
	p.RecordSessionEvent("tab_selected", "applied")
	p.RecordSessionEvent("patient_clicked", "applied")
	out := p.Expose()
	a := strings.Index(out, `type="patient_clicked"`)
	b := strings.Index(out, `type="tab_selected"`)
	if a < 0 || b < 0 || a > b {
		t.Errorf("expected sorted series, got\n%s", out)
	}
	if out != p.Expose() {
		t.Error("exposition should be deterministic")
	}
}

func TestMetrics_ConcurrentSafe(t *testing.T) {
	p := NewProvider(Config{})
	e := newTestEcho(p)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				serve(e, "/api/v1/patients/P001")
				p.RecordSessionEvent("tab_selected", "applied")
				_ = p.Expose()
			}
		}()
	}
	wg.Wait()

	if n := p.RequestCount("GET", "/api/v1/patients/:id", "200"); n != 500 {
		t.Errorf("expected 500 requests, got %d", n)
	}
	if n := p.SessionEvents("tab_selected", "applied"); n != 500 {
		t.Errorf("expected 500 events, got %d", n)
	}
}
