package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oggyb/wa-notifier/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func TestWebhookSecret(t *testing.T) {
	h := WebhookSecret("s3cret")(ok)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"match", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/status", nil)
			if tt.header != "" {
				req.Header.Set(WebhookSecretHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWebhookSecret_EmptyDisablesCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	WebhookSecret("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusRecorder(t *testing.T) {
	rec := record(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rec.code(), "nothing written yet")

	_, _ = rec.Write([]byte("hello"))
	assert.Equal(t, http.StatusOK, rec.code())
	assert.Equal(t, 5, rec.bytes)
	assert.Same(t, rec, record(rec), "an existing recorder is reused")

	rec = record(httptest.NewRecorder())
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rec.code())
}

func TestMetrics_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /things/{id}", ok)
	h := Metrics()(mux)

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "GET /things/{id}", "200")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/2", nil))
	assert.Equal(t, before+2, testutil.ToFloat64(counter))

	unmatched := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestLogger()(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
