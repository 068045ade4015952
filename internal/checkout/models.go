package checkout

import (
	"github.com/shopspring/decimal"
)

// CartItem is one line of the cart as sent by the client. Price is in major units.
type CartItem struct {
	ID       string
	Name     string
	Image    string
	Price    decimal.Decimal
	Quantity int
}

type InitiateRequest struct {
	UserID     string
	Items      []CartItem
	CouponCode string
}

type InitiateResult struct {
	GatewayOrderID string
	CheckoutID     string
	AmountMinor    int64
	TotalAmount    decimal.Decimal
	Currency       string
	CouponApplied  bool
}

type FinalizeRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type FinalizeResult struct {
	OrderID string
	// Created is false when the callback was a replay of an already finalized payment.
	Created bool
}
