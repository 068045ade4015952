package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"checkout-service/internal/coupons"
	"checkout-service/internal/stores/postgres"
	"checkout-service/pkg/logkey"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrPendingNotFound = errors.New("pending checkout not found")
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) SavePendingCheckout(ctx context.Context, p PendingCheckout) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout items: %w", err)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}

	query := `
		INSERT INTO pending_checkouts (id, user_id, gateway_order_id, items, coupon_code, amount_minor, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err = c.db.ExecContext(ctx, query, p.ID, p.UserID, p.GatewayOrderID, items, p.CouponCode, p.AmountMinor, p.Currency, p.Status)
	if err != nil {
		return fmt.Errorf("failed to insert pending checkout: %w", err)
	}
	return nil
}

func (c *Conf) GetPendingCheckout(ctx context.Context, gatewayOrderID string) (PendingCheckout, error) {
	query := `
		SELECT id, user_id, gateway_order_id, items, coupon_code, amount_minor, currency, status, created_at, updated_at
		FROM pending_checkouts
		WHERE gateway_order_id = $1
	`
	var p PendingCheckout
	var items []byte
	err := c.db.QueryRowContext(ctx, query, gatewayOrderID).Scan(
		&p.ID, &p.UserID, &p.GatewayOrderID, &items, &p.CouponCode, &p.AmountMinor, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PendingCheckout{}, ErrPendingNotFound
		}
		return PendingCheckout{}, fmt.Errorf("failed to query pending checkout: %w", err)
	}
	if err := json.Unmarshal(items, &p.Items); err != nil {
		return PendingCheckout{}, fmt.Errorf("failed to unmarshal checkout items: %w", err)
	}
	return p, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// FindByGatewayOrder looks up the order created for a gateway order. A gateway order is
// paid at most once, whatever payment id reported it.
func (c *Conf) FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (Order, error) {
	return findOrder(ctx, c.db, "gateway_order_id", gatewayOrderID)
}

// findOrder loads one order with its items. column is always a constant.
func findOrder(ctx context.Context, q querier, column, value string) (Order, error) {
	query := `
		SELECT id, user_id, total_amount, currency, coupon_code, gateway_order_id, gateway_payment_id, COALESCE(checkout_id::text, ''), created_at
		FROM orders
		WHERE ` + column + ` = $1
	`
	var o Order
	err := q.QueryRowContext(ctx, query, value).Scan(
		&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.CouponCode, &o.GatewayOrderID, &o.GatewayPaymentID, &o.CheckoutID, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("failed to query order: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Price); err != nil {
			return Order{}, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("error iterating order items: %w", err)
	}
	return o, nil
}

// Finalize creates the order, redeems the coupon and completes the pending checkout in a
// single transaction. It is idempotent on the gateway order: a second callback, even one
// carrying another payment id, returns the existing order with created == false and
// changes nothing.
func (c *Conf) Finalize(ctx context.Context, p FinalizeParams) (Order, bool, error) {
	o := Order{
		ID:               uuid.NewString(),
		UserID:           p.UserID,
		Items:            p.Items,
		TotalAmount:      p.TotalAmount,
		Currency:         p.Currency,
		CouponCode:       p.CouponCode,
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		CheckoutID:       p.CheckoutID,
	}
	created := true

	err := postgres.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		var checkoutID sql.NullString
		if p.CheckoutID != "" {
			checkoutID = sql.NullString{String: p.CheckoutID, Valid: true}

			// the row lock serializes callbacks for one checkout across instances
			var status string
			lockPending := `SELECT status FROM pending_checkouts WHERE id = $1 FOR UPDATE`
			err := tx.QueryRowContext(ctx, lockPending, p.CheckoutID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrPendingNotFound, p.CheckoutID)
			}
			if err != nil {
				return fmt.Errorf("failed to lock pending checkout: %w", err)
			}
			if status == StatusCompleted {
				existing, err := findOrder(ctx, tx, "checkout_id", p.CheckoutID)
				if err != nil {
					return fmt.Errorf("failed to load order of completed checkout: %w", err)
				}
				o, created = existing, false
				return nil
			}
		}

		insertOrder := `
			INSERT INTO orders (id, user_id, total_amount, currency, coupon_code, gateway_order_id, gateway_payment_id, checkout_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT DO NOTHING
			RETURNING created_at
		`
		err := tx.QueryRowContext(ctx, insertOrder, o.ID, o.UserID, o.TotalAmount, o.Currency, o.CouponCode,
			o.GatewayOrderID, o.GatewayPaymentID, checkoutID).Scan(&o.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			// already finalized by an earlier or concurrent callback
			existing, err := findOrder(ctx, tx, "gateway_order_id", o.GatewayOrderID)
			if err != nil {
				return fmt.Errorf("failed to load existing order: %w", err)
			}
			o, created = existing, false
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		if p.CouponCode != "" {
			changed, err := coupons.DeactivateWith(ctx, tx, p.CouponCode, p.UserID)
			if err != nil {
				return err
			}
			if !changed {
				slog.Warn("no active coupon to deactivate", slog.String(logkey.CouponCode, p.CouponCode), slog.String(logkey.UserID, p.UserID))
			}
		}

		insertItem := `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
		`
		for _, it := range p.Items {
			if _, err := tx.ExecContext(ctx, insertItem, o.ID, it.ProductID, it.Quantity, it.Price); err != nil {
				return fmt.Errorf("failed to insert order item %s: %w", it.ProductID, err)
			}
		}

		if checkoutID.Valid {
			completePending := `
				UPDATE pending_checkouts
				SET status = $2, updated_at = NOW()
				WHERE id = $1
			`
			if _, err := tx.ExecContext(ctx, completePending, p.CheckoutID, StatusCompleted); err != nil {
				return fmt.Errorf("failed to complete pending checkout: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	if !created && o.GatewayPaymentID != p.GatewayPaymentID {
		slog.Warn("gateway order already paid under another payment id", slog.String(logkey.GatewayOrderID, p.GatewayOrderID),
			slog.String(logkey.PaymentID, p.GatewayPaymentID), slog.String(logkey.OrderID, o.ID))
	}
	return o, created, nil
}
