package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/v1/registry/{certificateID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/registry/{certificateID}", "418"))
	for _, id := range []string{"CPU-2026-000001", "CPU-2026-000002"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/registry/"+id, nil))
		if rr.Code != http.StatusTeapot {
			t.Fatalf("unexpected status %d", rr.Code)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/registry/{certificateID}", "418"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests under one pattern label, got %v", after-before)
	}
}

func TestRoutePatternOutsideRouter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	if got := RoutePattern(req); got != "unmatched" {
		t.Fatalf("RoutePattern()=%q, want unmatched", got)
	}
}

func TestWorkflowCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(webhookEvents.WithLabelValues("unknown", "ignored"))
	WebhookResult("", "ignored")
	if got := testutil.ToFloat64(webhookEvents.WithLabelValues("unknown", "ignored")); got != before+1 {
		t.Fatalf("webhook counter not incremented: %v", got)
	}

	sent := testutil.ToFloat64(certificateDeliveries.WithLabelValues("sent"))
	CertificateDelivery(true)
	if got := testutil.ToFloat64(certificateDeliveries.WithLabelValues("sent")); got != sent+1 {
		t.Fatalf("delivery counter not incremented: %v", got)
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Logger().Info().Str("session_id", "cs_test_1").Msg("fulfilled")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "service", "session_id"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
}
