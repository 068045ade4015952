package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
)

// stripe metadata holds at most 50 keys with values up to 500 characters; one key is the receipt
const (
	stripeMetadataLimit = 500
	stripeMaxMetadata   = 49
	stripeReceiptKey    = "receipt"
)

// Stripe maps gateway orders onto PaymentIntents.
type Stripe struct {
	intents *paymentintent.Client
}

func NewStripe(key string) (*Stripe, error) {
	if key == "" {
		return nil, fmt.Errorf("stripe secret key is empty")
	}
	return &Stripe{
		intents: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key},
	}, nil
}

func (s *Stripe) CreateOrder(ctx context.Context, p CreateOrderParams) (Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(p.AmountMinor),
		Currency:    stripe.String(strings.ToLower(p.Currency)),
		Description: stripe.String(p.Receipt),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(stripeReceiptKey, p.Receipt)
	notes, err := splitNotes(p.Notes, stripeMetadataLimit, stripeMaxMetadata)
	if err != nil {
		return Order{}, fmt.Errorf("stripe create payment intent: %w", err)
	}
	for k, v := range notes {
		params.AddMetadata(k, v)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return Order{}, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return orderFromPaymentIntent(pi)
}

func (s *Stripe) FetchOrder(ctx context.Context, id string) (Order, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(id, params)
	if err != nil {
		return Order{}, fmt.Errorf("stripe fetch payment intent %s: %w", id, err)
	}
	return orderFromPaymentIntent(pi)
}

func orderFromPaymentIntent(pi *stripe.PaymentIntent) (Order, error) {
	if pi == nil || pi.ID == "" {
		return Order{}, fmt.Errorf("%w: missing payment intent id", ErrInvalidResponse)
	}
	o := Order{
		ID:          pi.ID,
		AmountMinor: pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
		Status:      string(pi.Status),
		Notes:       map[string]string{},
	}
	raw := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		if k == stripeReceiptKey {
			o.Receipt = v
			continue
		}
		raw[k] = v
	}
	o.Notes = joinNotes(raw)
	if o.Receipt == "" {
		o.Receipt = pi.Description
	}
	return o, nil
}
