package logkey

// Attribute keys shared by every slog call in the service.
const (
	TraceID        = "TRACE ID"
	ERROR          = "ERROR"
	UserID         = "UserID"
	GatewayOrderID = "GatewayOrderID"
	PaymentID      = "PaymentID"
	OrderID        = "OrderID"
	CouponCode     = "CouponCode"
)
