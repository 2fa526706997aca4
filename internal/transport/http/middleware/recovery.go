package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorReporter forwards unexpected failures to an external error tracker.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// Recovery converts panics into 500 responses and forwards them to Sentry with the stack.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			stack := string(debug.Stack())
			hub := sentry.GetHubFromContext(c.Request.Context())
			if hub == nil {
				hub = sentry.CurrentHub()
			}
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("route", c.FullPath())
				scope.SetExtra("panic", fmt.Sprint(rec))
				scope.SetExtra("stack", stack)
				hub.CaptureMessage("panic in request")
			})

			log.Error("panic recovered",
				zap.String("trace_id", GetTraceID(c)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
				zap.String("stack", stack),
			)

			c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "internal server error"))
		}()

		c.Next()
	}
}

// ReportServerErrors forwards errors attached to 5xx responses to reporter.
func ReportServerErrors(reporter ErrorReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if reporter == nil || c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		tags := map[string]string{
			"method":   c.Request.Method,
			"route":    c.FullPath(),
			"trace_id": GetTraceID(c),
		}
		for _, ginErr := range c.Errors {
			reporter.Report(c.Request.Context(), ginErr.Err, tags)
		}
	}
}
