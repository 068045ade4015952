package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"checkout-service/pkg/logkey"

	razorpay "github.com/razorpay/razorpay-go"
)

// razorpay accepts at most 15 notes of 256 characters each
const (
	razorpayNoteLimit = 256
	razorpayMaxNotes  = 15
)

type Razorpay struct {
	client *razorpay.Client
}

func NewRazorpay(keyID, keySecret string) (*Razorpay, error) {
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("razorpay credentials are empty")
	}
	return &Razorpay{client: razorpay.NewClient(keyID, keySecret)}, nil
}

func (r *Razorpay) CreateOrder(ctx context.Context, p CreateOrderParams) (Order, error) {
	split, err := splitNotes(p.Notes, razorpayNoteLimit, razorpayMaxNotes)
	if err != nil {
		return Order{}, fmt.Errorf("razorpay create order: %w", err)
	}
	notes := make(map[string]interface{}, len(split))
	for k, v := range split {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   p.AmountMinor,
		"currency": p.Currency,
		"receipt":  p.Receipt,
		"notes":    notes,
	}

	body, err := withContext(ctx, func() (map[string]interface{}, error) {
		return r.client.Order.Create(data, nil)
	})
	if err != nil {
		return Order{}, fmt.Errorf("razorpay create order: %w", err)
	}
	return orderFromRazorpay(body)
}

func (r *Razorpay) FetchOrder(ctx context.Context, id string) (Order, error) {
	body, err := withContext(ctx, func() (map[string]interface{}, error) {
		return r.client.Order.Fetch(id, nil, nil)
	})
	if err != nil {
		slog.Error("razorpay fetch failed", slog.String(logkey.GatewayOrderID, id), slog.String(logkey.ERROR, err.Error()))
		return Order{}, fmt.Errorf("razorpay fetch order %s: %w", id, err)
	}
	return orderFromRazorpay(body)
}

// withContext runs a blocking SDK call and gives up when ctx is done.
func withContext(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := fn()
		ch <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.body, res.err
	}
}

func orderFromRazorpay(body map[string]interface{}) (Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return Order{}, fmt.Errorf("%w: missing order id", ErrInvalidResponse)
	}
	amount, err := minorAmount(body["amount"])
	if err != nil {
		return Order{}, err
	}

	o := Order{
		ID:          id,
		AmountMinor: amount,
		Notes:       map[string]string{},
	}
	o.Currency, _ = body["currency"].(string)
	o.Receipt, _ = body["receipt"].(string)
	o.Status, _ = body["status"].(string)

	// an order without notes comes back as an empty JSON array
	if notes, ok := body["notes"].(map[string]interface{}); ok {
		raw := make(map[string]string, len(notes))
		for k, v := range notes {
			switch val := v.(type) {
			case string:
				raw[k] = val
			case nil:
			default:
				raw[k] = fmt.Sprint(val)
			}
		}
		o.Notes = joinNotes(raw)
	}
	return o, nil
}

func minorAmount(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: fractional amount %v", ErrInvalidResponse, n)
		}
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		a, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: amount %q", ErrInvalidResponse, n)
		}
		return a, nil
	default:
		return 0, fmt.Errorf("%w: missing amount", ErrInvalidResponse)
	}
}
