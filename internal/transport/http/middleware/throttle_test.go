package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func newThrottledRouter(t *testing.T, throttle *Throttle) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(throttle.Handler())
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func fixedIdentifier(id string) IdentifierFunc {
	return func(*gin.Context) (string, bool) { return id, true }
}

func TestThrottleRejectsAfterBurst(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	throttle := NewThrottle(1, 2, fixedIdentifier("192.0.2.1"), zaptest.NewLogger(t)).
		WithClock(func() time.Time { return now })
	router := newThrottledRouter(t, throttle)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests || problem.RetryAfter != 1 {
		t.Fatalf("unexpected problem payload: %+v", problem)
	}

	now = now.Add(time.Second)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected refill after one second, got %d", rr.Code)
	}
}

func TestThrottleSeparatesIdentifiers(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	current := "198.51.100.1"
	throttle := NewThrottle(1, 1, func(*gin.Context) (string, bool) { return current, true }, nil).
		WithClock(func() time.Time { return now })
	router := newThrottledRouter(t, throttle)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	current = "198.51.100.2"
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("second client must have its own bucket, got %d", rr.Code)
	}
}

func TestThrottleEvictsIdleVisitors(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	throttle := NewThrottle(1, 1, fixedIdentifier("203.0.113.9"), nil).
		WithClock(func() time.Time { return now })
	router := newThrottledRouter(t, throttle)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	now = now.Add(defaultIdleTTL)
	throttle.reserve("other")

	throttle.mu.Lock()
	defer throttle.mu.Unlock()
	if _, ok := throttle.visitors["203.0.113.9"]; ok {
		t.Fatalf("expected idle visitor to be evicted")
	}
}

func TestThrottleDisabledWithoutRate(t *testing.T) {
	router := newThrottledRouter(t, NewThrottle(0, 0, fixedIdentifier("x"), nil))

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected disabled throttle to pass, got %d", rr.Code)
		}
	}
}
