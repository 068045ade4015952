package middleware

import (
	"log/slog"
	"time"

	"checkout-service/pkg/ctxmanage"
	"checkout-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := c.GetHeader(ctxmanage.TraceHeader)
		if traceId == "" {
			traceId = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxmanage.WithTraceId(c.Request.Context(), traceId))
		c.Header(ctxmanage.TraceHeader, traceId)

		start := time.Now()
		slog.Info("started", slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method), slog.String("URL Path", c.Request.URL.Path))

		c.Next()

		slog.Info("completed", slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method), slog.String("URL Path", c.Request.URL.Path),
			slog.Int("Status Code", c.Writer.Status()), slog.Duration("Latency", time.Since(start)))
	}
}
