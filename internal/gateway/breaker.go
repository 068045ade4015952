package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker guards a Client so a failing gateway is not hammered by every checkout.
type Breaker struct {
	next        Client
	cb          *gobreaker.CircuitBreaker[Order]
	callTimeout time.Duration
}

// NewBreaker bounds every call by callTimeout (zero disables it) and stays open for openTimeout
// after five consecutive failures.
func NewBreaker(name string, next Client, callTimeout, openTimeout time.Duration) *Breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a cancelled request says nothing about gateway health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("payment gateway breaker state changed",
				slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[Order](st), callTimeout: callTimeout}
}

func (b *Breaker) CreateOrder(ctx context.Context, p CreateOrderParams) (Order, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.cb.Execute(func() (Order, error) {
		return b.next.CreateOrder(ctx, p)
	})
}

func (b *Breaker) FetchOrder(ctx context.Context, id string) (Order, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.cb.Execute(func() (Order, error) {
		return b.next.FetchOrder(ctx, id)
	})
}

func (b *Breaker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.callTimeout)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
