package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ctxKey int

const TraceIdKey ctxKey = 1

// TraceHeader is echoed back to the caller so a request can be found in the logs.
const TraceHeader = "X-Trace-Id"

// GetTraceIdOfRequest returns the trace id set by middleware.Logger, or a fresh one
// when the handler runs without the middleware (tests, background work).
func GetTraceIdOfRequest(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return uuid.NewString()
	}
	return GetTraceId(c.Request.Context())
}

func GetTraceId(ctx context.Context) string {
	traceId, ok := ctx.Value(TraceIdKey).(string)
	if !ok || traceId == "" {
		return uuid.NewString()
	}
	return traceId
}

func WithTraceId(ctx context.Context, traceId string) context.Context {
	return context.WithValue(ctx, TraceIdKey, traceId)
}
