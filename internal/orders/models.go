package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Item is one purchased product, priced in the major unit the cart was quoted in.
type Item struct {
	ProductID string          `json:"id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Order represents a paid order in the database
type Order struct {
	ID               string          `json:"id"`                 // UUID generated by the service
	UserID           string          `json:"user_id"`            // Owner of the order
	Items            []Item          `json:"items"`              // Product snapshot taken at checkout
	TotalAmount      decimal.Decimal `json:"total_amount"`       // Major currency unit
	Currency         string          `json:"currency"`           // ISO code as reported by the gateway
	CouponCode       string          `json:"coupon_code"`        // Redeemed coupon, empty when none
	GatewayOrderID   string          `json:"gateway_order_id"`   // Payment gateway order id
	GatewayPaymentID string          `json:"gateway_payment_id"` // Payment gateway payment id
	CheckoutID       string          `json:"checkout_id"`        // Pending checkout it completed, may be empty
	CreatedAt        time.Time       `json:"created_at"`
}

// PendingCheckout is written when the gateway order is created and completed when it is paid.
type PendingCheckout struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	Items          []Item    `json:"items"`
	CouponCode     string    `json:"coupon_code"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FinalizeParams carries everything needed to turn a paid gateway order into an Order.
type FinalizeParams struct {
	CheckoutID       string
	UserID           string
	Items            []Item
	TotalAmount      decimal.Decimal
	Currency         string
	CouponCode       string
	GatewayOrderID   string
	GatewayPaymentID string
}
