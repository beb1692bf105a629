package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/checkflow/internal/metrics"
)

func echoOperator() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetOperatorFromContext(r.Context())))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"k-alice": "alice"})(echoOperator())

	cases := []struct {
		name   string
		path   string
		header string
		code   int
		body   string
	}{
		{"public path", "/health", "", http.StatusOK, ""},
		{"missing header", "/v1/checks", "", http.StatusUnauthorized, ""},
		{"unknown key", "/v1/checks", "Bearer nope", http.StatusUnauthorized, ""},
		{"bearer key", "/v1/checks", "Bearer k-alice", http.StatusOK, "alice"},
		{"bare key", "/v1/checks", "k-alice", http.StatusOK, "alice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestAPIKeyAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	APIKeyAuth(nil)(echoOperator()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/checks", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	h := RateLimitMiddleware(NewRateLimiter(0.001, 2))(echoOperator())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/captures", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodPost, "/v1/captures", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other clients keep their own bucket")
}

func TestHealthHandlers(t *testing.T) {
	ok := CheckerFunc(func(context.Context) error { return nil })
	down := CheckerFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"db": ok, "scanner": down}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	ReadinessHandler(map[string]HealthChecker{"db": ok}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)
}

type statusBody struct {
	Status string `json:"status" validate:"required,checkstatus"`
	Field  string `json:"field" validate:"omitempty,checkfield"`
	Scope  string `json:"scope" validate:"omitempty,partition"`
}

func TestDecodeJSON(t *testing.T) {
	var ok statusBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"validated","field":"amount","scope":"rejected"}`))
	require.NoError(t, DecodeJSON(req, &ok))

	var bad statusBody
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"archived","field":"colour"}`))
	err := DecodeJSON(req, &bad)
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, map[string]string{"status": "checkstatus", "field": "checkfield"}, re.Fields)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	require.ErrorAs(t, DecodeJSON(req, &bad), &re)
	assert.Nil(t, re.Fields)
}

func TestLoggingAndMetricsMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	h := LoggingMiddleware(logger)(MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, http.StatusTeapot, hook.LastEntry().Data["status"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPInProgress))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "ok\tnote", SanitizeString(" ok\x00\tnote\x07 "))
}
