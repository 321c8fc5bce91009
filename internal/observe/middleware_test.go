package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup installs an in-memory tracer and a manual metric reader.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// apiMux mimics the analysis API routes.
func apiMux(status int, seen *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyses", func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = CorrelationID(r.Context())
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"a1"}`))
	})
	mux.HandleFunc("GET /v1/users/{userID}/sessions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	return mux
}

func captureDebugLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	m, _, _ := testSetup(t)

	var seen string
	h := Middleware(m)(apiMux(http.StatusCreated, &seen))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader("{}")))

	if len(seen) != 32 {
		t.Fatalf("correlation ID %q, want 32 hex chars", seen)
	}
	if got := rec.Header().Get(CorrelationHeader); got != seen {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, seen)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
}

func TestMiddleware_HonoursTraceparent(t *testing.T) {
	m, _, _ := testSetup(t)

	var seen string
	h := Middleware(m)(apiMux(http.StatusOK, &seen))
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("correlation ID = %q, want the incoming trace ID", seen)
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	m, _, exp := testSetup(t)

	h := Middleware(m)(apiMux(http.StatusOK, nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/users/alice/sessions", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if want := "HTTP GET /v1/users/{userID}/sessions"; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
	var route string
	for _, a := range spans[0].Attributes {
		if a.Key == "http.route" {
			route = a.Value.AsString()
		}
	}
	if route != "GET /v1/users/{userID}/sessions" {
		t.Errorf("http.route = %q", route)
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	m, _, exp := testSetup(t)

	h := Middleware(m)(apiMux(http.StatusInternalServerError, nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/analyses", nil))

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader, _ := testSetup(t)

	h := Middleware(m)(apiMux(http.StatusUnprocessableEntity, nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/analyses", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/users/bob/sessions", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "oratio.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	got := map[string]string{}
	for _, dp := range hist.DataPoints {
		r, _ := dp.Attributes.Value(attribute.Key("route"))
		s, _ := dp.Attributes.Value(attribute.Key("status"))
		got[r.AsString()] = s.AsString()
	}
	want := map[string]string{
		"POST /v1/analyses":               "4xx",
		"GET /v1/users/{userID}/sessions": "2xx",
		"unmatched":                       "4xx",
	}
	for route, status := range want {
		if got[route] != status {
			t.Errorf("route %q status = %q, want %q (all: %v)", route, got[route], status, got)
		}
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	m, _, _ := testSetup(t)
	logs := captureDebugLogs(t)

	Middleware(m)(apiMux(http.StatusUnprocessableEntity, nil)).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/analyses", nil))
	Middleware(m)(apiMux(http.StatusOK, nil)).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/users/carol/sessions", nil))

	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=422") {
		t.Errorf("client error not logged at warn:\n%s", out)
	}
	if !strings.Contains(out, "user_id=carol") {
		t.Errorf("user_id missing from sessions log line:\n%s", out)
	}
}

func TestMiddleware_NilMetrics(t *testing.T) {
	testSetup(t)

	rec := httptest.NewRecorder()
	Middleware(nil)(apiMux(http.StatusOK, nil)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyses", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestStatusClass(t *testing.T) {
	t.Parallel()
	for code, want := range map[int]string{200: "2xx", 201: "2xx", 404: "4xx", 422: "4xx", 503: "5xx"} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
