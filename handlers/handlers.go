package handlers

import (
	"context"
	"errors"
	"net/http"

	"checkout-service/internal/auth"
	"checkout-service/internal/checkout"
	"checkout-service/internal/config"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Checkout is the part of checkout.Service the HTTP layer drives.
type Checkout interface {
	Initiate(ctx context.Context, req checkout.InitiateRequest) (checkout.InitiateResult, error)
	Finalize(ctx context.Context, req checkout.FinalizeRequest) (checkout.FinalizeResult, error)
	FinalizeCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (checkout.FinalizeResult, error)
}

type Handler struct {
	svc           Checkout
	validate      *validator.Validate
	provider      string
	webhookSecret string
}

func NewHandler(svc Checkout, provider, webhookSecret string) *Handler {
	return &Handler{
		svc:           svc,
		validate:      validator.New(),
		provider:      provider,
		webhookSecret: webhookSecret,
	}
}

type Options struct {
	EndpointPrefix string
	GinMode        string
	Keys           *auth.Keys
	// Metrics is optional; /metrics is only served when set.
	Metrics       *middleware.Metrics
	Provider      string
	WebhookSecret string
}

func API(svc Checkout, opts Options) (*gin.Engine, error) {
	if svc == nil {
		return nil, errors.New("checkout service is nil")
	}
	if opts.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if opts.GinMode == gin.TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	m, err := middleware.NewMid(opts.Keys)
	if err != nil {
		return nil, err
	}
	if opts.Provider == "" {
		opts.Provider = config.GatewayRazorpay
	}

	r := gin.New()
	h := NewHandler(svc, opts.Provider, opts.WebhookSecret)
	r.Use(middleware.Logger(), gin.Recovery())
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	r.GET("/ping", HealthCheck)
	v1 := r.Group(opts.EndpointPrefix)
	{
		if opts.WebhookSecret != "" {
			v1.POST("/webhook", h.Webhook)
		}
		v1.GET("/ping", HealthCheck)
		v1.Use(m.Authentication())
		v1.POST("/create-session", m.Authorize(h.CreateSession, auth.RoleUser))
		v1.POST("/success", m.Authorize(h.Success, auth.RoleUser))
	}
	return r, nil
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}
