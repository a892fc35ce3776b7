package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestWithRequestIDEchoesHeader(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 32)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "SLOT_UNAVAILABLE", "taken", map[string]string{"time": "10:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"code":"SLOT_UNAVAILABLE","message":"taken","details":{"time":"10:00"}}}`, rec.Body.String())
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	assert.Error(t, DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.EqualError(t, DecodeJSON(req, &dst), "request body is empty")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ana"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "ana", dst.Name)
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://book.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/public/book", nil)
	req.Header.Set("Origin", "https://book.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://book.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterInMemory(t *testing.T) {
	h := NewRateLimiter(2, time.Minute).Middleware()(okHandler())
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiterEnvelopeAndSweep(t *testing.T) {
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler())

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.1.1.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	now = now.Add(20 * time.Second)
	rec := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":"RATE_LIMITED"`)

	require.Equal(t, http.StatusOK, send("10.0.0.2").Code)
	assert.Equal(t, 2, rl.size())

	now = now.Add(2 * time.Minute)
	require.Equal(t, http.StatusOK, send("10.0.0.3").Code)
	assert.Equal(t, 1, rl.size())
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewRedisRateLimiter(rdb, 1, time.Minute, "test").Middleware(nil, false)(okHandler())

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	assert.True(t, mr.Exists("test:192.0.2.1"))

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, send())
}

func TestRedisRateLimiterFailOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	h := NewRedisRateLimiter(rdb, 1, time.Minute, "test").Middleware(nil, true)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSWildcardSubdomain(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://*.zapagenda.app"},
		ExposedHeaders: []string{RequestIDHeader},
	})(okHandler())

	check := func(origin string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Header().Get("Access-Control-Allow-Origin")
	}
	assert.Equal(t, "https://studio-ana.zapagenda.app", check("https://studio-ana.zapagenda.app"))
	assert.Empty(t, check("https://zapagenda.app"))
	assert.Empty(t, check("http://studio-ana.zapagenda.app"))
	assert.Empty(t, check("https://studio-ana.zapagenda.app.evil.com"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://a.zapagenda.app")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestWithRequestIDRejectsMalformed(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "has space")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seen, 32)
	assert.Equal(t, seen, req.Header.Get(RequestIDHeader))
	assert.False(t, ValidRequestID(strings.Repeat("a", 129)))
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	var deadline time.Time
	h := WithTimeout(time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, _ = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
}

func TestAccessLogLevels(t *testing.T) {
	assert.Equal(t, slog.LevelError, accessLevel(http.StatusBadGateway, true))
	assert.Equal(t, slog.LevelDebug, accessLevel(http.StatusOK, true))
	assert.Equal(t, slog.LevelInfo, accessLevel(http.StatusNotFound, false))
}
