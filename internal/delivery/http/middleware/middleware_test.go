package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/x", ok)
	r.POST("/x", ok)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRateLimiter(client)
	r := newEngine(rl.Middleware(RateLimitConfig{Limit: 2, Window: time.Minute, KeyPrefix: "rl:test:"}))

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	ttl := mr.TTL("rl:test:192.0.2.1")
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRateLimiterFallback(t *testing.T) {
	t.Run("Should fall back to memory when redis fails open", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		rl := NewRateLimiter(client)
		r := newEngine(rl.Middleware(RateLimitConfig{Limit: 1, Window: time.Minute, KeyPrefix: "rl:test:"}))

		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	})

	t.Run("Should reject when redis fails closed", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		rl := NewRateLimiter(client)
		r := newEngine(rl.Middleware(RateLimitConfig{Limit: 1, Window: time.Minute, FailClosed: true}))
		assert.Equal(t, http.StatusServiceUnavailable, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	})

	t.Run("Should reset after the window", func(t *testing.T) {
		rl := NewRateLimiter(nil)
		now := time.Now()
		rl.now = func() time.Time { return now }
		r := newEngine(rl.Middleware(RateLimitConfig{Limit: 1, Window: time.Minute}))

		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)

		now = now.Add(2 * time.Minute)
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	})
}

func TestCSRF(t *testing.T) {
	r := newEngine(CSRFMiddleware())

	t.Run("Should let bearer requests through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("Authorization", "Bearer abc")
		assert.Equal(t, http.StatusOK, serve(r, req).Code)
	})

	t.Run("Should require the header for cookie sessions", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: "jwt"})
		req.AddCookie(&http.Cookie{Name: CSRFTokenCookieName, Value: "t1"})
		assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

		req = httptest.NewRequest(http.MethodPost, "/x", nil)
		req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: "jwt"})
		req.AddCookie(&http.Cookie{Name: CSRFTokenCookieName, Value: "t1"})
		req.Header.Set(CSRFTokenHeaderName, "t1")
		assert.Equal(t, http.StatusOK, serve(r, req).Code)
	})

	t.Run("Should issue a token cookie on safe requests", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Set-Cookie"), CSRFTokenCookieName)
	})
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", serve(r, req).Header().Get(RequestIDHeader))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}
