package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"checkout-service/internal/checkout"
	"checkout-service/internal/config"
	"checkout-service/pkg/ctxmanage"
	"checkout-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	stripeSignatureHeader   = "Stripe-Signature"
)

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Webhook finalizes orders from the gateway's server-to-server notifications. It is the
// fallback for clients that never reach the success callback.
func (h *Handler) Webhook(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	const MaxBodyBytes = int64(65536)

	// Limit the request body size
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("failed to read webhook body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var eventType, orderID, paymentID string
	handled := false

	switch h.provider {
	case config.GatewayStripe:
		event, err := webhook.ConstructEventWithOptions(body, c.GetHeader(stripeSignatureHeader), h.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			slog.Error("webhook signature verification failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook signature"})
			return
		}
		eventType = string(event.Type)
		if event.Type == "payment_intent.succeeded" {
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				slog.Error("failed to unmarshal payment intent", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			orderID, paymentID = pi.ID, pi.ID
			if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
				paymentID = pi.LatestCharge.ID
			}
			handled = true
		}

	default:
		if !checkout.VerifyWebhook(h.webhookSecret, body, c.GetHeader(razorpaySignatureHeader)) {
			slog.Error("webhook signature verification failed", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook signature"})
			return
		}
		var event razorpayWebhook
		if err := json.Unmarshal(body, &event); err != nil {
			slog.Error("failed to unmarshal webhook", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		eventType = event.Event
		switch event.Event {
		case "payment.captured", "order.paid":
			orderID = event.Payload.Payment.Entity.OrderID
			paymentID = event.Payload.Payment.Entity.ID
			handled = true
		}
	}

	if !handled {
		slog.Info("Unhandled event type", slog.String(logkey.TraceID, traceId), slog.String("event_type", eventType))
		c.JSON(http.StatusOK, gin.H{
			"message": "Event type not handled",
			"event":   eventType,
		})
		return
	}

	res, err := h.svc.FinalizeCaptured(c.Request.Context(), orderID, paymentID)
	if err != nil {
		slog.Error("failed to finalize order from webhook", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.GatewayOrderID, orderID), slog.String(logkey.PaymentID, paymentID), slog.String(logkey.ERROR, err.Error()))
		if errors.Is(err, checkout.ErrVerification) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"message": "Error processing webhook",
			"error":   err.Error(),
		})
		return
	}

	slog.Info("order finalized from webhook", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.OrderID, res.OrderID), slog.Bool("created", res.Created))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"orderId": res.OrderID,
	})
}
