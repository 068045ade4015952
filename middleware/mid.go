package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"checkout-service/internal/auth"
	"checkout-service/pkg/ctxmanage"
	"checkout-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type Mid struct {
	k *auth.Keys
}

func NewMid(k *auth.Keys) (*Mid, error) {
	if k == nil {
		return nil, errors.New("auth keys cannot be nil")
	}
	return &Mid{k: k}, nil
}

// Authentication checks the bearer token and stores the claims in the request context.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)

		authHeader := c.Request.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			slog.Error("expected authorization header format: Bearer <token>", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}

		claims, err := m.k.ValidateToken(parts[1])
		if err != nil {
			slog.Error("token validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}

		ctx := context.WithValue(c.Request.Context(), auth.ClaimsKey, claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Authorize wraps a handler so only callers holding one of roles reach it.
func (m *Mid) Authorize(next gin.HandlerFunc, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)
		claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
		if !ok {
			slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}
		if !claims.HasRole(roles...) {
			slog.Error("role not allowed", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.UserID, claims.Subject), slog.Any("roles", claims.Roles))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": http.StatusText(http.StatusForbidden)})
			return
		}
		next(c)
	}
}
