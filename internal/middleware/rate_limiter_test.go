package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRateLimiter(t *testing.T, maxRequests int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRateLimiter(client, RateLimiterConfig{
		MaxRequests: maxRequests,
		Window:      window,
		Prefix:      "ratelimit:test",
	}), mr
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func requestFrom(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BlocksRequestsOverLimit(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 5, time.Minute)
	router := limitedRouter(rl)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.168.1.1").Code, "request %d", i+1)
	}

	w := requestFrom(router, "192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_DifferentIPsIndependent(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 3, time.Minute)
	router := limitedRouter(rl)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.168.1.1").Code)
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.168.1.2").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, requestFrom(router, "192.168.1.1").Code)
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 2, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.CheckLimit(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := rl.CheckLimit(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	mr.FastForward(2 * time.Second)

	allowed, err = rl.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_FailsOpenWhenRedisIsDown(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute)
	router := limitedRouter(rl)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "10.0.0.1").Code)
	}

	_, err := rl.Allow(context.Background(), "user:1")
	assert.Error(t, err)
}

func BenchmarkRateLimiter_CheckLimit(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	require.NoError(b, mr.Start())
	defer mr.Close()

	rl := NewRateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), RateLimiterConfig{
		MaxRequests: 1000000,
		Window:      time.Minute,
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = rl.CheckLimit(ctx, "192.168.1.100")
	}
}
