package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderPaid    = `checkout-service.order-paid`
	TopicRewardIssued = `checkout-service.reward-issued`
)

type OrderPaidItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderPaidEvent is published once per created order, keyed by order id.
type OrderPaidEvent struct {
	OrderID          string          `json:"order_id"`
	UserID           string          `json:"user_id"`
	Items            []OrderPaidItem `json:"items"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         string          `json:"currency"`
	CouponCode       string          `json:"coupon_code,omitempty"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	CreatedAt        time.Time       `json:"created_at"`
}

// RewardIssuedEvent is keyed by user id.
type RewardIssuedEvent struct {
	UserID             string    `json:"user_id"`
	CouponCode         string    `json:"coupon_code"`
	DiscountPercentage int       `json:"discount_percentage"`
	ExpiresAt          time.Time `json:"expires_at"`
	CreatedAt          time.Time `json:"created_at"`
}
