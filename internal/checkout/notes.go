package checkout

import (
	"encoding/json"
	"fmt"

	"checkout-service/internal/orders"
)

// gateway order note keys
const (
	noteUserID     = "userId"
	noteProducts   = "products"
	noteCouponCode = "couponCode"
	noteCheckoutID = "checkoutId"
)

type snapshot struct {
	CheckoutID string
	UserID     string
	Items      []orders.Item
	CouponCode string
}

func encodeNotes(s snapshot) (map[string]string, error) {
	products, err := json.Marshal(s.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal products: %w", err)
	}
	return map[string]string{
		noteUserID:     s.UserID,
		noteProducts:   string(products),
		noteCouponCode: s.CouponCode,
		noteCheckoutID: s.CheckoutID,
	}, nil
}

func decodeNotes(notes map[string]string) (snapshot, error) {
	s := snapshot{
		CheckoutID: notes[noteCheckoutID],
		UserID:     notes[noteUserID],
		CouponCode: notes[noteCouponCode],
	}
	if s.UserID == "" {
		return snapshot{}, fmt.Errorf("order notes are missing %s", noteUserID)
	}
	raw, ok := notes[noteProducts]
	if !ok || raw == "" {
		return snapshot{}, fmt.Errorf("order notes are missing %s", noteProducts)
	}
	if err := json.Unmarshal([]byte(raw), &s.Items); err != nil {
		return snapshot{}, fmt.Errorf("malformed products in order notes: %w", err)
	}
	return s, nil
}
