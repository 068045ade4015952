package coupons

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/stores/postgres"
	"checkout-service/pkg/randstr"
)

var ErrNotFound = errors.New("coupon not found")

const (
	rewardPrefix = "GIFT"
	// a fresh random code is drawn when the previous one collides
	rewardCodeAttempts = 3
)

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Conf struct {
	db     *sql.DB
	reward RewardPolicy
}

func NewConf(db *sql.DB, reward RewardPolicy) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if reward.DiscountPercentage < 0 || reward.DiscountPercentage > 100 {
		return nil, fmt.Errorf("reward discount %d out of range", reward.DiscountPercentage)
	}
	return &Conf{db: db, reward: reward}, nil
}

// FindActive returns the active, unexpired coupon with the exact code owned by userID.
func (c *Conf) FindActive(ctx context.Context, code string, userID string) (Coupon, error) {
	query := `
		SELECT id, code, user_id, discount_percentage, is_active, is_reward, expires_at, created_at, updated_at
		FROM coupons
		WHERE code = $1 AND user_id = $2 AND is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > NOW())
	`
	var cp Coupon
	var expiresAt sql.NullTime
	err := c.db.QueryRowContext(ctx, query, code, userID).Scan(
		&cp.ID, &cp.Code, &cp.UserID, &cp.DiscountPercentage, &cp.IsActive, &cp.IsReward,
		&expiresAt, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, fmt.Errorf("failed to query coupon: %w", err)
	}
	if expiresAt.Valid {
		cp.ExpiresAt = &expiresAt.Time
	}
	return cp, nil
}

// Deactivate marks the coupon redeemed. A missing coupon is not an error; the
// returned bool reports whether a row changed.
func (c *Conf) Deactivate(ctx context.Context, code string, userID string) (bool, error) {
	return DeactivateWith(ctx, c.db, code, userID)
}

// DeactivateWith runs the deactivation on ex so callers can make it part of their transaction.
func DeactivateWith(ctx context.Context, ex Execer, code string, userID string) (bool, error) {
	query := `
		UPDATE coupons
		SET is_active = FALSE, updated_at = NOW()
		WHERE code = $1 AND user_id = $2 AND is_active = TRUE
	`
	res, err := ex.ExecContext(ctx, query, code, userID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate coupon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// IssueReward retires the user's previous reward coupon and creates a fresh one.
func (c *Conf) IssueReward(ctx context.Context, userID string) (Coupon, error) {
	var err error
	for i := 0; i < rewardCodeAttempts; i++ {
		var cp Coupon
		cp, err = c.issueReward(ctx, userID)
		if err == nil {
			return cp, nil
		}
		if !postgres.IsUniqueViolation(err) {
			return Coupon{}, err
		}
	}
	return Coupon{}, err
}

func (c *Conf) issueReward(ctx context.Context, userID string) (Coupon, error) {
	code, err := NewRewardCode()
	if err != nil {
		return Coupon{}, err
	}
	expiresAt := time.Now().UTC().Add(c.reward.TTL)

	cp := Coupon{
		Code:               code,
		UserID:             userID,
		DiscountPercentage: c.reward.DiscountPercentage,
		IsActive:           true,
		IsReward:           true,
		ExpiresAt:          &expiresAt,
	}

	err = postgres.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		retire := `
			UPDATE coupons
			SET is_active = FALSE, updated_at = NOW()
			WHERE user_id = $1 AND is_reward = TRUE AND is_active = TRUE
		`
		if _, err := tx.ExecContext(ctx, retire, userID); err != nil {
			return fmt.Errorf("failed to retire previous reward: %w", err)
		}

		insert := `
			INSERT INTO coupons (code, user_id, discount_percentage, is_active, is_reward, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, TRUE, $4, NOW(), NOW())
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRowContext(ctx, insert, cp.Code, cp.UserID, cp.DiscountPercentage, expiresAt).
			Scan(&cp.ID, &cp.CreatedAt, &cp.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert reward coupon: %w", err)
		}
		return nil
	})
	if err != nil {
		return Coupon{}, err
	}
	return cp, nil
}

// NewRewardCode returns GIFT followed by six random upper case base36 characters.
func NewRewardCode() (string, error) {
	s, err := randstr.Base36(6)
	if err != nil {
		return "", fmt.Errorf("failed to generate coupon code: %w", err)
	}
	return rewardPrefix + strings.ToUpper(s), nil
}
