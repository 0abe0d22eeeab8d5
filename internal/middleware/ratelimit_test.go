package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func testRedis(t *testing.T) *goredis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("allows requests under the limit", func(t *testing.T) {
		limiter := NewRedisRateLimiter(testRedis(t))

		for i := 0; i < 5; i++ {
			allowed, _, _ := limiter.Check(ctx, "user-1", 5)
			assert.True(t, allowed, "request %d should be allowed", i)
		}
	})

	t.Run("blocks requests over the limit", func(t *testing.T) {
		limiter := NewRedisRateLimiter(testRedis(t))

		for i := 0; i < 3; i++ {
			limiter.Check(ctx, "user-1", 3)
		}

		allowed, remaining, _ := limiter.Check(ctx, "user-1", 3)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("limits are per user", func(t *testing.T) {
		limiter := NewRedisRateLimiter(testRedis(t))

		for i := 0; i < 3; i++ {
			limiter.Check(ctx, "user-1", 3)
		}

		allowed, _, _ := limiter.Check(ctx, "user-2", 3)
		assert.True(t, allowed)
	})

	t.Run("fails open when redis is unavailable", func(t *testing.T) {
		client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
		t.Cleanup(func() { client.Close() })
		limiter := NewRedisRateLimiter(client)

		allowed, _, _ := limiter.Check(ctx, "user-1", 3)
		assert.True(t, allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	requestAs := func(userID string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/v1/sessions/current", nil)
		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		return r.WithContext(ctx)
	}

	t.Run("sets rate limit headers", func(t *testing.T) {
		mw := NewRateLimitMiddleware(testRedis(t), 10)

		rec := httptest.NewRecorder()
		mw.Handler(next).ServeHTTP(rec, requestAs("user-1"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("returns 429 over the limit", func(t *testing.T) {
		mw := NewRateLimitMiddleware(testRedis(t), 2)

		handler := mw.Handler(next)
		for i := 0; i < 2; i++ {
			handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-1"))
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs("user-1"))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("skips anonymous requests", func(t *testing.T) {
		mw := NewRateLimitMiddleware(testRedis(t), 1)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		mw.Handler(next).ServeHTTP(rec, r)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
