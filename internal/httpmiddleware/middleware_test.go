package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestTokenBucket_SweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 3, l.Len())

	now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.Equal(t, 1, l.Len(), "refilled buckets are dropped")

	// A busy client survives the sweep with its debt intact.
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	now = now.Add(61 * time.Second)
	l.mu.Lock()
	l.state["a"].last = now
	l.mu.Unlock()
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Allow("a"))
}

func TestTokenBucket_DisabledWhenRateIsZero(t *testing.T) {
	l := NewTokenBucket(0, 0)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestTokenBucket_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewTokenBucket(1, 1).Middleware(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, serve())
	assert.Equal(t, http.StatusTooManyRequests, serve())
}

func TestAccessLog_SkipsPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)

	r := gin.New()
	r.Use(AccessLog(zap.New(core), "/healthz"), SecurityHeaders())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, 0, logs.Len())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "request", entries[0].Message)
		assert.Equal(t, int64(http.StatusNotFound), entries[0].ContextMap()["status"])
	}
}
