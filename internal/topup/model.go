package topup

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

type AttemptStatus string

const (
	StatusCreated       AttemptStatus = "created"
	StatusCouponApplied AttemptStatus = "coupon_applied"
	StatusInitiated     AttemptStatus = "initiated"
	StatusPending       AttemptStatus = "pending"
	StatusCompleted     AttemptStatus = "completed"
	StatusFailed        AttemptStatus = "failed"
	StatusCancelled     AttemptStatus = "cancelled"
	StatusRefunded      AttemptStatus = "refunded"
)

// IsTerminal reports whether no further status writes are permitted.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Attempt is one quote/order cycle. CreditCents may exceed FinalCents when a
// bonus instrument applies. It reaches completed exactly once, through
// settlement.
type Attempt struct {
	ID                int            `db:"id" json:"id"`
	UserID            int            `db:"user_id" json:"user_id"`
	WalletID          int            `db:"wallet_id" json:"wallet_id"`
	PlanID            *string        `db:"plan_id" json:"plan_id,omitempty"`
	PlanSnapshot      types.JSONText `db:"plan_snapshot" json:"plan_snapshot,omitempty"`
	CouponCode        *string        `db:"coupon_code" json:"coupon_code,omitempty"`
	CouponUsageID     *int           `db:"coupon_usage_id" json:"coupon_usage_id,omitempty"`
	BaseCents         int64          `db:"base_cents" json:"base_cents"`
	DiscountCents     int64          `db:"discount_cents" json:"discount_cents"`
	BonusCents        int64          `db:"bonus_cents" json:"bonus_cents"`
	FinalCents        int64          `db:"final_cents" json:"final_cents"`
	CreditCents       int64          `db:"credit_cents" json:"credit_cents"`
	Provider          string         `db:"provider" json:"provider"`
	ProviderOrderID   *string        `db:"provider_order_id" json:"provider_order_id,omitempty"`
	ProviderPaymentID *string        `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	Status            AttemptStatus  `db:"status" json:"status"`
	IdempotencyKey    *string        `db:"idempotency_key" json:"idempotency_key,omitempty"`
	RawRequest        types.JSONText `db:"raw_request" json:"-"`
	RawResponse       types.JSONText `db:"raw_response" json:"-"`
	ErrorMessage      *string        `db:"error_message" json:"error,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
