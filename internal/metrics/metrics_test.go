package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bobbyillbrian-max/family-ms/internal/blob"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/documents/{docID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/api/documents/1", "/api/documents/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, m)
	want := `familyvault_http_requests_total{method="GET",route="/api/documents/{docID}",status="418"} 2`
	if !strings.Contains(out, want) {
		t.Errorf("metrics output missing %q\n%s", want, out)
	}
}

func TestObserveBlob(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBlob("put", nil, 100)
	m.ObserveBlob("put", blob.ErrTooLarge, 0)
	m.ObserveBlob("get", blob.ErrNotFound, 0)

	out := scrape(t, m)
	for _, want := range []string{
		`familyvault_blob_operations_total{op="put",result="ok"} 1`,
		`familyvault_blob_operations_total{op="put",result="rejected"} 1`,
		`familyvault_blob_operations_total{op="get",result="not_found"} 1`,
		`familyvault_blob_bytes_total{op="put"} 100`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
