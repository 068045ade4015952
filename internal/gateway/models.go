package gateway

import (
	"context"
	"errors"
)

var ErrInvalidResponse = errors.New("unexpected payment gateway response")

// Order is the gateway side view of a payment order. AmountMinor is in the smallest currency unit.
type Order struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
	Notes       map[string]string
}

type CreateOrderParams struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Client creates and fetches gateway orders.
type Client interface {
	CreateOrder(ctx context.Context, p CreateOrderParams) (Order, error)
	FetchOrder(ctx context.Context, id string) (Order, error)
}
