package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestClient connects to RIDEDECK_TEST_REDIS_ADDR or skips the test.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("RIDEDECK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RIDEDECK_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 14})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background())
		_ = client.Close()
	})
	return client
}

func newIdempotentRouter(client redis.Cmdable, calls *int32, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(callerIDKey, c.GetHeader("X-Caller"))
		c.Next()
	})
	router.Use(IdempotencyMiddleware(client, quietLogger()))
	router.POST("/rides", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	return router
}

func post(router *gin.Engine, caller, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rides", strings.NewReader(`{}`))
	req.Header.Set("X-Caller", caller)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_NilClientPassesThrough(t *testing.T) {
	var calls int32
	router := newIdempotentRouter(nil, &calls, http.StatusCreated)

	post(router, "rider-1", "k1")
	post(router, "rider-1", "k1")

	assert.Equal(t, int32(2), calls)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	client := newTestClient(t)
	var calls int32
	router := newIdempotentRouter(client, &calls, http.StatusCreated)

	first := post(router, "rider-1", "k1")
	second := post(router, "rider-1", "k1")

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestIdempotency_KeysAreScopedPerCaller(t *testing.T) {
	client := newTestClient(t)
	var calls int32
	router := newIdempotentRouter(client, &calls, http.StatusCreated)

	post(router, "rider-1", "k1")
	post(router, "rider-2", "k1")

	assert.Equal(t, int32(2), calls)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	client := newTestClient(t)
	var calls int32
	router := newIdempotentRouter(client, &calls, http.StatusInternalServerError)

	post(router, "rider-1", "k1")
	post(router, "rider-1", "k1")

	assert.Equal(t, int32(2), calls)
}

func TestIdempotency_InFlightKeyConflicts(t *testing.T) {
	client := newTestClient(t)
	var calls int32
	router := newIdempotentRouter(client, &calls, http.StatusCreated)

	require.NoError(t, client.Set(context.Background(), "idempotency:rider-1:k1:lock", 1, 0).Err())

	w := post(router, "rider-1", "k1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT_RETRYABLE")
	assert.Equal(t, int32(0), calls)
}
