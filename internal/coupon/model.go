package coupon

import (
	"time"

	"github.com/lib/pq"
)

// DiscountType is a closed set; Engine.CalculateDiscount switches over it and
// rejects anything else.
type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
	DiscountBonus      DiscountType = "bonus"
)

type UsageStatus string

const (
	UsageApplied  UsageStatus = "applied"
	UsageRedeemed UsageStatus = "redeemed"
	UsageFailed   UsageStatus = "failed"
	UsageRefunded UsageStatus = "refunded"
	UsageExpired  UsageStatus = "expired"
)

// Coupon is a top-up promotional instrument, distinct from the marketplace's
// redemption coupons. UsedCount increments only on settlement, never on quote.
type Coupon struct {
	ID                int            `db:"id" json:"id"`
	Code              string         `db:"code" json:"code"`
	DiscountType      DiscountType   `db:"discount_type" json:"discount_type"`
	DiscountValue     int64          `db:"discount_value" json:"discount_value"`
	ApplicablePlans   pq.StringArray `db:"applicable_plans" json:"applicable_plans"`
	MinPurchaseCents  int64          `db:"min_purchase_cents" json:"min_purchase_cents"`
	MaxDiscountCents  int64          `db:"max_discount_cents" json:"max_discount_cents"`
	BonusCents        int64          `db:"bonus_cents" json:"bonus_cents"`
	ValidFrom         time.Time      `db:"valid_from" json:"valid_from"`
	ValidTill         time.Time      `db:"valid_till" json:"valid_till"`
	UsageLimit        int            `db:"usage_limit" json:"usage_limit"`
	UsedCount         int            `db:"used_count" json:"used_count"`
	PerUserLimit      int            `db:"per_user_limit" json:"per_user_limit"`
	EligibleUserTypes pq.StringArray `db:"eligible_user_types" json:"eligible_user_types"`
	SpecificUsers     pq.Int64Array  `db:"specific_users" json:"specific_users"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	IsDeleted         bool           `db:"is_deleted" json:"-"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Usage records one applied instrument per top-up attempt. It is created at
// quote time in status applied and moves to redeemed inside the settlement
// transaction.
type Usage struct {
	ID                int         `db:"id" json:"id"`
	CouponID          int         `db:"coupon_id" json:"coupon_id"`
	UserID            int         `db:"user_id" json:"user_id"`
	TopUpAttemptID    *int        `db:"top_up_attempt_id" json:"top_up_attempt_id,omitempty"`
	AmountBeforeCents int64       `db:"amount_before_cents" json:"amount_before_cents"`
	DiscountCents     int64       `db:"discount_cents" json:"discount_cents"`
	BonusCents        int64       `db:"bonus_cents" json:"bonus_cents"`
	FinalPaidCents    int64       `db:"final_paid_cents" json:"final_paid_cents"`
	FinalCreditCents  int64       `db:"final_credit_cents" json:"final_credit_cents"`
	Status            UsageStatus `db:"status" json:"status"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}
