package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func TestInitTracerDisabledIsNoop(t *testing.T) {
	flush, err := InitTracer(context.Background(), TracerConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}

	_, span := StartSpan(context.Background(), "test", "noop")
	AddSpanAttributes(span, map[string]any{"k": "v", "n": 1})
	RecordError(span, errors.New("boom"))
	span.End()

	if err := flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/abc", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `parkbay_api_requests_total{endpoint="/bookings/{id}",method="GET",status="418"}`) {
		t.Fatalf("expected route-pattern label in metrics output, got:\n%s", body)
	}
}
