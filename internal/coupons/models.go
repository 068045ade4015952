package coupons

import "time"

// Coupon is a user scoped percentage discount.
type Coupon struct {
	ID                 int64      `json:"id"`
	Code               string     `json:"code"`
	UserID             string     `json:"user_id"`
	DiscountPercentage int        `json:"discount_percentage"` // 0-100
	IsActive           bool       `json:"is_active"`
	IsReward           bool       `json:"is_reward"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// RewardPolicy describes the coupon handed out after a large purchase.
type RewardPolicy struct {
	DiscountPercentage int
	TTL                time.Duration
}
