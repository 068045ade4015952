package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/auth"
	"checkout-service/internal/checkout"
	"checkout-service/internal/config"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

const testWebhookSecret = "whsec_test"

type captured struct {
	orderID   string
	paymentID string
}

type fakeCheckout struct {
	mu          sync.Mutex
	initiate    []checkout.InitiateRequest
	finalize    []checkout.FinalizeRequest
	captured    []captured
	initiateErr error
	finalizeErr error
}

func (f *fakeCheckout) Initiate(ctx context.Context, req checkout.InitiateRequest) (checkout.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiate = append(f.initiate, req)
	if f.initiateErr != nil {
		return checkout.InitiateResult{}, f.initiateErr
	}
	return checkout.InitiateResult{
		GatewayOrderID: "order_1",
		AmountMinor:    192000,
		TotalAmount:    checkout.ToMajor(192000),
		Currency:       "INR",
	}, nil
}

func (f *fakeCheckout) Finalize(ctx context.Context, req checkout.FinalizeRequest) (checkout.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalize = append(f.finalize, req)
	if f.finalizeErr != nil {
		return checkout.FinalizeResult{}, f.finalizeErr
	}
	return checkout.FinalizeResult{OrderID: "8c1f7a52-0000-4000-8000-000000000001", Created: true}, nil
}

func (f *fakeCheckout) FinalizeCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (checkout.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured = append(f.captured, captured{orderID: gatewayOrderID, paymentID: gatewayPaymentID})
	if f.finalizeErr != nil {
		return checkout.FinalizeResult{}, f.finalizeErr
	}
	return checkout.FinalizeResult{OrderID: "8c1f7a52-0000-4000-8000-000000000001", Created: true}, nil
}

type testServer struct {
	router *gin.Engine
	svc    *fakeCheckout
	token  string
}

func newTestServer(t *testing.T, provider string) *testServer {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys, err := auth.NewKeys(&priv.PublicKey)
	require.NoError(t, err)

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{auth.RoleUser},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(priv)
	require.NoError(t, err)

	svc := &fakeCheckout{}
	r, err := API(svc, Options{
		EndpointPrefix: "/checkout",
		GinMode:        gin.TestMode,
		Keys:           keys,
		Metrics:        middleware.NewMetrics("handlers_test"),
		Provider:       provider,
		WebhookSecret:  testWebhookSecret,
	})
	require.NoError(t, err)
	return &testServer{router: r, svc: svc, token: token}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.token}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateSession_Success(t *testing.T) {
	s := newTestServer(t, config.GatewayRazorpay)
	body := `{"products":[{"_id":"p1","name":"Mug","image":"mug.png","price":10.5,"quantity":2},{"_id":"p2","name":"Pen","price":"3"}],"couponCode":"SAVE10"}`

	rec := s.do(t, http.MethodPost, "/checkout/create-session", body, s.authed())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"orderId":"order_1","totalAmount":1920}`, rec.Body.String())

	require.Len(t, s.svc.initiate, 1)
	req := s.svc.initiate[0]
	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, "SAVE10", req.CouponCode)
	require.Len(t, req.Items, 2)
	assert.True(t, req.Items[0].Price.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, 2, req.Items[0].Quantity)
	assert.Equal(t, 0, req.Items[1].Quantity)
}

func TestCreateSession_BadCart(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty products", `{"products":[]}`},
		{"missing products", `{"couponCode":"SAVE10"}`},
		{"products not an array", `{"products":"p1"}`},
		{"product without id", `{"products":[{"name":"Mug","price":1}]}`},
		{"negative quantity", `{"products":[{"_id":"p1","price":1,"quantity":-2}]}`},
		{"not json", `products=p1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, config.GatewayRazorpay)
			rec := s.do(t, http.MethodPost, "/checkout/create-session", tt.body, s.authed())

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, map[string]any{"error": "Invalid or empty products array"}, decode(t, rec))
			assert.Empty(t, s.svc.initiate, "no gateway call on bad input")
		})
	}
}

func TestCreateSession_ServiceErrors(t *testing.T) {
	s := newTestServer(t, config.GatewayRazorpay)
	body := `{"products":[{"_id":"p1","price":-1,"quantity":1}]}`

	s.svc.initiateErr = fmt.Errorf("%w: product p1 has negative price", checkout.ErrValidation)
	rec := s.do(t, http.MethodPost, "/checkout/create-session", body, s.authed())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "negative price")

	s.svc.initiateErr = errors.New("razorpay create order: BAD_REQUEST_ERROR")
	rec = s.do(t, http.MethodPost, "/checkout/create-session", body, s.authed())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{
		"message": "Error processing checkout",
		"error":   "razorpay create order: BAD_REQUEST_ERROR",
	}, decode(t, rec))
}

func TestCreateSession_RequiresToken(t *testing.T) {
	s := newTestServer(t, config.GatewayRazorpay)

	rec := s.do(t, http.MethodPost, "/checkout/create-session", `{"products":[{"_id":"p1","price":1}]}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.svc.initiate)
}

func TestSuccess(t *testing.T) {
	body := `{"razorpayPaymentId":"pay_1","razorpayOrderId":"order_1","razorpaySignature":"abc"}`

	t.Run("created", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		rec := s.do(t, http.MethodPost, "/checkout/success", body, s.authed())

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{
			"success": true,
			"message": "Payment successful, order created, and coupon deactivated if used.",
			"orderId": "8c1f7a52-0000-4000-8000-000000000001",
		}, decode(t, rec))
		require.Len(t, s.svc.finalize, 1)
		assert.Equal(t, checkout.FinalizeRequest{GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", Signature: "abc"}, s.svc.finalize[0])
	})

	t.Run("verification failed", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		s.svc.finalizeErr = checkout.ErrVerification
		rec := s.do(t, http.MethodPost, "/checkout/success", body, s.authed())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, map[string]any{"message": "Payment verification failed"}, decode(t, rec))
	})

	t.Run("internal error", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		s.svc.finalizeErr = errors.New("failed to insert order: connection reset")
		rec := s.do(t, http.MethodPost, "/checkout/success", body, s.authed())

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, map[string]any{
			"message": "Error processing successful checkout",
			"error":   "failed to insert order: connection reset",
		}, decode(t, rec))
	})

	t.Run("missing fields", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		rec := s.do(t, http.MethodPost, "/checkout/success", `{"razorpayOrderId":"order_1"}`, s.authed())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, s.svc.finalize)
	})
}

func razorpaySignature(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_Razorpay(t *testing.T) {
	capturedBody := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`

	t.Run("payment captured", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		rec := s.do(t, http.MethodPost, "/checkout/webhook", capturedBody,
			map[string]string{razorpaySignatureHeader: razorpaySignature(capturedBody)})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, s.svc.captured, 1)
		assert.Equal(t, "order_1", s.svc.captured[0].orderID)
		assert.Equal(t, "pay_1", s.svc.captured[0].paymentID)
	})

	t.Run("bad signature", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		rec := s.do(t, http.MethodPost, "/checkout/webhook", capturedBody,
			map[string]string{razorpaySignatureHeader: razorpaySignature(capturedBody + " ")})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, s.svc.captured)
	})

	t.Run("unhandled event", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		body := `{"event":"refund.created","payload":{}}`
		rec := s.do(t, http.MethodPost, "/checkout/webhook", body,
			map[string]string{razorpaySignatureHeader: razorpaySignature(body)})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"message": "Event type not handled", "event": "refund.created"}, decode(t, rec))
		assert.Empty(t, s.svc.captured)
	})

	t.Run("finalize fails", func(t *testing.T) {
		s := newTestServer(t, config.GatewayRazorpay)
		s.svc.finalizeErr = errors.New("gateway timeout")
		rec := s.do(t, http.MethodPost, "/checkout/webhook", capturedBody,
			map[string]string{razorpaySignatureHeader: razorpaySignature(capturedBody)})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestWebhook_Stripe(t *testing.T) {
	s := newTestServer(t, config.GatewayStripe)
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "object": "payment_intent", "amount": 4999, "currency": "inr", "latest_charge": "ch_123"}}
	}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	rec := s.do(t, http.MethodPost, "/checkout/webhook", string(signed.Payload),
		map[string]string{stripeSignatureHeader: signed.Header})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, s.svc.captured, 1)
	assert.Equal(t, captured{orderID: "pi_123", paymentID: "ch_123"}, s.svc.captured[0])

	rec = s.do(t, http.MethodPost, "/checkout/webhook", string(payload),
		map[string]string{stripeSignatureHeader: "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, config.GatewayRazorpay)

	rec := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "checkout_handlers_test_http_requests_total")
}
