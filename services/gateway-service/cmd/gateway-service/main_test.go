package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T, name string) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		w.Header().Set("X-Seen-Business", r.Header.Get(businessHeader))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u
}

func TestRoutesReachUpstreams(t *testing.T) {
	mux := http.NewServeMux()
	registerRoutes(mux, slog.Default(), upstream(t, "booking"), upstream(t, "business"), time.Second)

	cases := []struct {
		path     string
		business string
		status   int
		upstream string
	}{
		{"/api/v1/public/slots?slug=demo&date=2025-01-10&service_id=s1", "", http.StatusOK, "booking"},
		{"/api/v1/public/book", "", http.StatusOK, "booking"},
		{"/api/v1/public/availability/stream?business_id=b1&date=2025-01-10", "", http.StatusOK, "booking"},
		{"/api/v1/business/companies", "", http.StatusOK, "business"},
		{"/api/v1/business/settings", "b1", http.StatusOK, "business"},
		{"/api/v1/business/settings", "", http.StatusUnauthorized, ""},
		{"/api/v1/appointments", "b1", http.StatusOK, "booking"},
		{"/api/v1/appointments/cancel", "", http.StatusUnauthorized, ""},
		{"/api/v1/clients/deduplicate", "b1", http.StatusOK, "booking"},
		{"/api/v1/unknown", "", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.business != "" {
				req.Header.Set(businessHeader, tc.business)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.upstream, rec.Header().Get("X-Upstream"))
			if tc.upstream != "" {
				assert.Equal(t, tc.business, rec.Header().Get("X-Seen-Business"))
			}
		})
	}
}

func TestRequireBusiness(t *testing.T) {
	h := requireBusiness(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(businessHeader, "   ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)

	req.Header.Set(businessHeader, "b1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoadGatewaySettings(t *testing.T) {
	t.Setenv("BOOKING_URL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")

	cfg, err := loadGatewaySettings()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "booking-service:8083", cfg.BookingURL.Host)
	assert.Equal(t, int64(1<<20), cfg.BodyLimit)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Contains(t, cfg.CORS.AllowedHeaders, businessHeader)

	t.Setenv("BUSINESS_URL", "not a url")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	t.Setenv("REQUEST_TIMEOUT", "soon")
	_, err = loadGatewaySettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUSINESS_URL")
	assert.Contains(t, err.Error(), "RATE_LIMIT_PER_MINUTE")
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
}

func TestUpstreamErrorsUseEnvelope(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slow.Close)
	slowURL, err := url.Parse(slow.URL)
	require.NoError(t, err)

	down, err := url.Parse("http://127.0.0.1:1")
	require.NoError(t, err)

	mux := http.NewServeMux()
	registerRoutes(mux, slog.Default(), slowURL, down, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"UPSTREAM_TIMEOUT"`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/business/settings", nil)
	req.Header.Set(businessHeader, "b1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"BAD_GATEWAY"`)
}
