package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"checkout-service/internal/auth"
	"checkout-service/internal/checkout"
	"checkout-service/pkg/ctxmanage"
	"checkout-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const maxCartBodyBytes = int64(1 << 20)

type CartProduct struct {
	ID       string          `json:"_id" validate:"required"`
	Name     string          `json:"name"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=0"`
}

type CreateSessionRequest struct {
	Products   []CartProduct `json:"products" validate:"required,min=1,dive"`
	CouponCode string        `json:"couponCode"`
}

type PaymentCallback struct {
	RazorpayPaymentID string `json:"razorpayPaymentId" validate:"required"`
	RazorpayOrderID   string `json:"razorpayOrderId" validate:"required"`
	RazorpaySignature string `json:"razorpaySignature" validate:"required"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCartBodyBytes)

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid or empty products array"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		slog.Error("cart validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid or empty products array"})
		return
	}

	items := make([]checkout.CartItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, checkout.CartItem{
			ID:       p.ID,
			Name:     p.Name,
			Image:    p.Image,
			Price:    p.Price,
			Quantity: p.Quantity,
		})
	}

	res, err := h.svc.Initiate(c.Request.Context(), checkout.InitiateRequest{
		UserID:     claims.Subject,
		Items:      items,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		slog.Error("error creating checkout session", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.UserID, claims.Subject), slog.String(logkey.ERROR, err.Error()))
		if errors.Is(err, checkout.ErrValidation) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"message": "Error processing checkout",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":     res.GatewayOrderID,
		"totalAmount": json.Number(res.TotalAmount.String()),
	})
}

func (h *Handler) Success(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	var req PaymentCallback
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		slog.Error("payment callback validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	res, err := h.svc.Finalize(c.Request.Context(), checkout.FinalizeRequest{
		GatewayOrderID:   req.RazorpayOrderID,
		GatewayPaymentID: req.RazorpayPaymentID,
		Signature:        req.RazorpaySignature,
	})
	if err != nil {
		slog.Error("error finalizing checkout", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.GatewayOrderID, req.RazorpayOrderID), slog.String(logkey.PaymentID, req.RazorpayPaymentID),
			slog.String(logkey.ERROR, err.Error()))
		if errors.Is(err, checkout.ErrVerification) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Payment verification failed"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"message": "Error processing successful checkout",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment successful, order created, and coupon deactivated if used.",
		"orderId": res.OrderID,
	})
}
