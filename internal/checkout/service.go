package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"checkout-service/internal/coupons"
	"checkout-service/internal/gateway"
	"checkout-service/internal/orders"
	"checkout-service/internal/stores/kafka"
	"checkout-service/pkg/ctxmanage"
	"checkout-service/pkg/logkey"
	"checkout-service/pkg/randstr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const receiptPrefix = "order_rcptid_"

type CouponStore interface {
	FindActive(ctx context.Context, code string, userID string) (coupons.Coupon, error)
	IssueReward(ctx context.Context, userID string) (coupons.Coupon, error)
}

type OrderStore interface {
	SavePendingCheckout(ctx context.Context, p orders.PendingCheckout) error
	GetPendingCheckout(ctx context.Context, gatewayOrderID string) (orders.PendingCheckout, error)
	FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (orders.Order, error)
	Finalize(ctx context.Context, p orders.FinalizeParams) (orders.Order, bool, error)
}

type Publisher interface {
	ProduceMessage(ctx context.Context, topic string, key []byte, value []byte) error
}

type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Dependencies are the collaborators of the Service. Publisher and Locker are optional.
type Dependencies struct {
	Coupons   CouponStore
	Orders    OrderStore
	Gateway   gateway.Client
	Publisher Publisher
	Locker    Locker
}

type Settings struct {
	CallbackSecret       string
	Currency             string
	ConversionRate       decimal.Decimal
	RewardThresholdMinor int64
	// RewardTimeout bounds the background reward issue and event publishing.
	RewardTimeout time.Duration
}

type Service struct {
	deps     Dependencies
	settings Settings
	wg       sync.WaitGroup
}

func NewService(deps Dependencies, settings Settings) (*Service, error) {
	if deps.Coupons == nil || deps.Orders == nil || deps.Gateway == nil {
		return nil, errors.New("checkout: coupon store, order store and gateway are required")
	}
	if settings.CallbackSecret == "" {
		return nil, errors.New("checkout: callback secret is empty")
	}
	if !settings.ConversionRate.IsPositive() {
		return nil, errors.New("checkout: conversion rate must be positive")
	}
	if settings.Currency == "" {
		settings.Currency = "INR"
	}
	if settings.RewardTimeout <= 0 {
		settings.RewardTimeout = 10 * time.Second
	}
	return &Service{deps: deps, settings: settings}, nil
}

// Initiate prices the cart, applies the user's coupon and creates the gateway order the
// client will pay against.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	traceId := ctxmanage.GetTraceId(ctx)

	items, err := normalizeItems(req.Items)
	if err != nil {
		return InitiateResult{}, err
	}

	amount := AmountMinor(items, s.settings.ConversionRate)

	var couponCode string
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		cp, err := s.deps.Coupons.FindActive(ctx, code, req.UserID)
		switch {
		case errors.Is(err, coupons.ErrNotFound):
			slog.Info("coupon not applied", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.CouponCode, code), slog.String(logkey.UserID, req.UserID))
		case err != nil:
			return InitiateResult{}, fmt.Errorf("coupon lookup: %w", err)
		default:
			amount = ApplyDiscount(amount, cp.DiscountPercentage)
			couponCode = cp.Code
		}
	}

	rnd, err := randstr.Base36(6)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("failed to generate receipt: %w", err)
	}

	snap := snapshot{
		CheckoutID: uuid.NewString(),
		UserID:     req.UserID,
		Items:      toOrderItems(items),
		CouponCode: couponCode,
	}
	notes, err := encodeNotes(snap)
	if err != nil {
		return InitiateResult{}, err
	}

	gwo, err := s.deps.Gateway.CreateOrder(ctx, gateway.CreateOrderParams{
		AmountMinor: amount,
		Currency:    s.settings.Currency,
		Receipt:     receiptPrefix + rnd,
		Notes:       notes,
	})
	if err != nil {
		return InitiateResult{}, err
	}

	err = s.deps.Orders.SavePendingCheckout(ctx, orders.PendingCheckout{
		ID:             snap.CheckoutID,
		UserID:         req.UserID,
		GatewayOrderID: gwo.ID,
		Items:          snap.Items,
		CouponCode:     couponCode,
		AmountMinor:    amount,
		Currency:       s.settings.Currency,
		Status:         orders.StatusPending,
	})
	if err != nil {
		return InitiateResult{}, err
	}

	slog.Info("gateway order created", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.GatewayOrderID, gwo.ID), slog.String(logkey.UserID, req.UserID), slog.Int64("amount", amount))

	if amount >= s.settings.RewardThresholdMinor {
		s.issueReward(traceId, req.UserID)
	}

	return InitiateResult{
		GatewayOrderID: gwo.ID,
		CheckoutID:     snap.CheckoutID,
		AmountMinor:    amount,
		TotalAmount:    ToMajor(amount),
		Currency:       s.settings.Currency,
		CouponApplied:  couponCode != "",
	}, nil
}

// Finalize verifies the client payment callback and records the order.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error) {
	if !VerifySignature(s.settings.CallbackSecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		return FinalizeResult{}, ErrVerification
	}
	return s.reconcile(ctx, req.GatewayOrderID, req.GatewayPaymentID)
}

// FinalizeCaptured records the order for a payment reported by an already authenticated
// gateway webhook.
func (s *Service) FinalizeCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (FinalizeResult, error) {
	if gatewayOrderID == "" || gatewayPaymentID == "" {
		return FinalizeResult{}, fmt.Errorf("%w: missing gateway order or payment id", ErrVerification)
	}
	return s.reconcile(ctx, gatewayOrderID, gatewayPaymentID)
}

func (s *Service) reconcile(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (FinalizeResult, error) {
	traceId := ctxmanage.GetTraceId(ctx)

	if s.deps.Locker != nil {
		release, err := s.deps.Locker.Lock(ctx, gatewayOrderID)
		if err != nil {
			return FinalizeResult{}, fmt.Errorf("failed to lock checkout: %w", err)
		}
		defer release()
	}

	// a gateway order is paid once; a second payment id for it (success callback and
	// webhook report different ids on Stripe) resolves to the same order
	existing, err := s.deps.Orders.FindByGatewayOrder(ctx, gatewayOrderID)
	if err == nil {
		slog.Info("payment already finalized", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.GatewayOrderID, gatewayOrderID), slog.String(logkey.PaymentID, gatewayPaymentID),
			slog.String(logkey.OrderID, existing.ID), slog.Bool("same_payment", existing.GatewayPaymentID == gatewayPaymentID))
		return FinalizeResult{OrderID: existing.ID}, nil
	}
	if !errors.Is(err, orders.ErrOrderNotFound) {
		return FinalizeResult{}, err
	}

	gwo, err := s.deps.Gateway.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		return FinalizeResult{}, err
	}

	snap, err := s.resolveSnapshot(ctx, gwo)
	if err != nil {
		return FinalizeResult{}, err
	}

	order, created, err := s.deps.Orders.Finalize(ctx, orders.FinalizeParams{
		CheckoutID:       snap.CheckoutID,
		UserID:           snap.UserID,
		Items:            snap.Items,
		TotalAmount:      ToMajor(gwo.AmountMinor),
		Currency:         gwo.Currency,
		CouponCode:       snap.CouponCode,
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
	})
	if err != nil {
		return FinalizeResult{}, err
	}

	slog.Info("order finalized", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, order.ID),
		slog.String(logkey.GatewayOrderID, gatewayOrderID), slog.String(logkey.PaymentID, gatewayPaymentID), slog.Bool("created", created))

	if created {
		s.publishOrderPaid(traceId, order)
	}
	return FinalizeResult{OrderID: order.ID, Created: created}, nil
}

// resolveSnapshot prefers the local pending checkout and falls back to the gateway notes
// for orders created before it existed.
func (s *Service) resolveSnapshot(ctx context.Context, gwo gateway.Order) (snapshot, error) {
	p, err := s.deps.Orders.GetPendingCheckout(ctx, gwo.ID)
	if err == nil {
		if p.AmountMinor != gwo.AmountMinor || !strings.EqualFold(p.Currency, gwo.Currency) {
			return snapshot{}, fmt.Errorf("%w: expected %d %s, gateway has %d %s",
				ErrAmountMismatch, p.AmountMinor, p.Currency, gwo.AmountMinor, gwo.Currency)
		}
		return snapshot{CheckoutID: p.ID, UserID: p.UserID, Items: p.Items, CouponCode: p.CouponCode}, nil
	}
	if !errors.Is(err, orders.ErrPendingNotFound) {
		return snapshot{}, err
	}

	snap, err := decodeNotes(gwo.Notes)
	if err != nil {
		return snapshot{}, err
	}
	// no local row to reference
	snap.CheckoutID = ""
	return snap, nil
}

func (s *Service) issueReward(traceId, userID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctxmanage.WithTraceId(context.Background(), traceId), s.settings.RewardTimeout)
		defer cancel()

		cp, err := s.deps.Coupons.IssueReward(ctx, userID)
		if err != nil {
			slog.Error("failed to issue reward coupon", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.UserID, userID), slog.String(logkey.ERROR, err.Error()))
			return
		}
		slog.Info("reward coupon issued", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.UserID, userID), slog.String(logkey.CouponCode, cp.Code))

		var expiresAt time.Time
		if cp.ExpiresAt != nil {
			expiresAt = *cp.ExpiresAt
		}
		s.publish(ctx, traceId, kafka.TopicRewardIssued, userID, kafka.RewardIssuedEvent{
			UserID:             userID,
			CouponCode:         cp.Code,
			DiscountPercentage: cp.DiscountPercentage,
			ExpiresAt:          expiresAt,
			CreatedAt:          time.Now().UTC(),
		})
	}()
}

func (s *Service) publishOrderPaid(traceId string, o orders.Order) {
	if s.deps.Publisher == nil {
		return
	}
	items := make([]kafka.OrderPaidItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, kafka.OrderPaidItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	event := kafka.OrderPaidEvent{
		OrderID:          o.ID,
		UserID:           o.UserID,
		Items:            items,
		TotalAmount:      o.TotalAmount,
		Currency:         o.Currency,
		CouponCode:       o.CouponCode,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		CreatedAt:        o.CreatedAt,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.settings.RewardTimeout)
		defer cancel()
		s.publish(ctx, traceId, kafka.TopicOrderPaid, o.ID, event)
	}()
}

func (s *Service) publish(ctx context.Context, traceId, topic, key string, event any) {
	if s.deps.Publisher == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		return
	}
	if err := s.deps.Publisher.ProduceMessage(ctx, topic, []byte(key), data); err != nil {
		slog.Error("failed to produce message", slog.String(logkey.TraceID, traceId),
			slog.String("topic", topic), slog.String(logkey.ERROR, err.Error()))
		return
	}
	slog.Info("message produced", slog.String(logkey.TraceID, traceId), slog.String("topic", topic))
}

// Wait blocks until background reward and event work has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func normalizeItems(in []CartItem) ([]CartItem, error) {
	if len(in) == 0 {
		return nil, ErrValidation
	}
	out := make([]CartItem, len(in))
	for i, it := range in {
		if strings.TrimSpace(it.ID) == "" {
			return nil, fmt.Errorf("%w: product %d has no id", ErrValidation, i)
		}
		if it.Quantity < 0 {
			return nil, fmt.Errorf("%w: product %s has negative quantity", ErrValidation, it.ID)
		}
		if it.Price.IsNegative() {
			return nil, fmt.Errorf("%w: product %s has negative price", ErrValidation, it.ID)
		}
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		out[i] = it
	}
	return out, nil
}

func toOrderItems(items []CartItem) []orders.Item {
	out := make([]orders.Item, 0, len(items))
	for _, it := range items {
		out = append(out, orders.Item{ProductID: it.ID, Quantity: it.Quantity, Price: it.Price})
	}
	return out
}
