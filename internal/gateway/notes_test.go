package gateway

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartNote(items int) string {
	parts := make([]string, items)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"id":"65f1c0ffee%014d","quantity":1,"price":"199.99"}`, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestSplitNotes_LargeCartRoundTrips(t *testing.T) {
	products := cartNote(4)
	require.Greater(t, len(products), razorpayNoteLimit)

	notes := map[string]string{
		"userId":     "user-1",
		"products":   products,
		"couponCode": "SAVE10",
		"checkoutId": "8f2c6f0e-4a57-4a8e-9c55-1c1f6f7a2b11",
	}
	split, err := splitNotes(notes, razorpayNoteLimit, razorpayMaxNotes)
	require.NoError(t, err)

	assert.NotContains(t, split, "products")
	assert.Contains(t, split, "products_0")
	assert.Contains(t, split, "products_1")
	for k, v := range split {
		assert.LessOrEqual(t, len(v), razorpayNoteLimit, k)
	}
	assert.Equal(t, notes, joinNotes(split))
}

func TestSplitNotes_SmallNotesUntouched(t *testing.T) {
	notes := map[string]string{"userId": "user-1", "products": `[{"id":"p1"}]`}
	split, err := splitNotes(notes, razorpayNoteLimit, razorpayMaxNotes)
	require.NoError(t, err)
	assert.Equal(t, notes, split)
	assert.Equal(t, notes, joinNotes(split))
}

func TestSplitNotes_TooManyNotes(t *testing.T) {
	notes := map[string]string{"userId": "user-1", "products": cartNote(80)}

	_, err := splitNotes(notes, razorpayNoteLimit, razorpayMaxNotes)
	assert.ErrorIs(t, err, ErrNotesTooLarge)
}

func TestSplitNotes_KeepsRunesWhole(t *testing.T) {
	value := strings.Repeat("é", 200)
	split, err := splitNotes(map[string]string{"name": value}, 255, 10)
	require.NoError(t, err)

	for _, chunk := range split {
		assert.True(t, strings.HasPrefix(chunk, "é"))
		assert.Zero(t, len(chunk)%2, "no multi-byte rune is cut")
	}
	assert.Equal(t, value, joinNotes(split)["name"])
}

func TestOrderFromRazorpay_JoinsChunkedNotes(t *testing.T) {
	products := cartNote(6)
	split, err := splitNotes(map[string]string{"userId": "u1", "products": products}, razorpayNoteLimit, razorpayMaxNotes)
	require.NoError(t, err)

	raw := map[string]interface{}{}
	for k, v := range split {
		raw[k] = v
	}
	got, err := orderFromRazorpay(map[string]interface{}{
		"id":       "order_Big",
		"amount":   float64(120000),
		"currency": "INR",
		"notes":    raw,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"userId": "u1", "products": products}, got.Notes)
}
