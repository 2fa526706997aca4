package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appLogger "github.com/arklim/auction-registry/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://registry.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"

	defaultIdleTTL = 10 * time.Minute
)

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// IdentifierFunc extracts the identifier used to scope throttling (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle keeps one token bucket per identifier. Buckets idle longer than the TTL are evicted.
type Throttle struct {
	limit      rate.Limit
	burst      int
	identifier IdentifierFunc
	idleTTL    time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewThrottle builds a throttle allowing requestsPerSecond with the given burst per identifier.
func NewThrottle(requestsPerSecond float64, burst int, identifier IdentifierFunc, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if identifier == nil {
		identifier = ClientIPIdentifier()
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limit:      rate.Limit(requestsPerSecond),
		burst:      burst,
		identifier: identifier,
		idleTTL:    defaultIdleTTL,
		logger:     logger,
		now:        time.Now,
		visitors:   make(map[string]*visitor),
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	if now != nil {
		t.now = now
	}
	return t
}

func (t *Throttle) reserve(key string) *rate.Reservation {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) >= t.idleTTL {
		for k, v := range t.visitors {
			if now.Sub(v.lastSeen) >= t.idleTTL {
				delete(t.visitors, k)
			}
		}
		t.lastSweep = now
	}

	v, ok := t.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.ReserveN(now, 1)
}

// Handler returns a Gin middleware enforcing the throttle. A non-positive rate disables it.
func (t *Throttle) Handler() gin.HandlerFunc {
	if t == nil || t.limit <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		key, ok := t.identifier(c)
		if !ok || key == "" {
			c.Next()
			return
		}

		now := t.now()
		reservation := t.reserve(key)
		if !reservation.OK() {
			t.reject(c, key, time.Second)
			return
		}
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			t.reject(c, key, delay)
			return
		}

		c.Next()
	}
}

func (t *Throttle) reject(c *gin.Context, key string, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	t.logger.Warn("request throttled",
		zap.String("client", appLogger.MaskIP(key)),
		zap.String("path", c.Request.URL.Path),
		zap.Int("retry_after", seconds),
	)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
