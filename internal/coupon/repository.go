package coupon

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrUsageNotFound  = errors.New("coupon usage not found")
)

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	c := &Coupon{}
	err := r.db.GetContext(ctx, c,
		`SELECT * FROM topup_coupons WHERE code = $1 AND is_deleted = FALSE`,
		NormalizeCode(code),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CountUserUsages counts applied and redeemed usages for the per-user limit.
// Failed, refunded and expired usages do not count against it.
func (r *SQLRepository) CountUserUsages(ctx context.Context, couponID, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2 AND status IN ('applied', 'redeemed')
	`, couponID, userID)
	return count, err
}

type CreateUsageParams struct {
	CouponID          int
	UserID            int
	AmountBeforeCents int64
	DiscountCents     int64
	BonusCents        int64
	FinalPaidCents    int64
	FinalCreditCents  int64
}

func (r *SQLRepository) CreateUsage(ctx context.Context, ext sqlx.ExtContext, p CreateUsageParams) (*Usage, error) {
	u := &Usage{}
	err := sqlx.GetContext(ctx, ext, u, `
		INSERT INTO coupon_usages
		  (coupon_id, user_id, amount_before_cents, discount_cents, bonus_cents,
		   final_paid_cents, final_credit_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'applied')
		RETURNING *
	`, p.CouponID, p.UserID, p.AmountBeforeCents, p.DiscountCents, p.BonusCents,
		p.FinalPaidCents, p.FinalCreditCents)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// MarkUsageRedeemed finalizes a usage inside the settlement transaction,
// stamping the attempt it settled against.
func (r *SQLRepository) MarkUsageRedeemed(ctx context.Context, ext sqlx.ExtContext, usageID, attemptID int) error {
	res, err := ext.ExecContext(ctx, `
		UPDATE coupon_usages
		SET status = 'redeemed', top_up_attempt_id = $2, updated_at = NOW()
		WHERE id = $1
	`, usageID, attemptID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUsageNotFound
	}
	return nil
}

func (r *SQLRepository) MarkUsageStatus(ctx context.Context, ext sqlx.ExtContext, usageID int, status UsageStatus) error {
	_, err := ext.ExecContext(ctx, `
		UPDATE coupon_usages SET status = $2, updated_at = NOW() WHERE id = $1
	`, usageID, status)
	return err
}

func (r *SQLRepository) IncrementUsedCount(ctx context.Context, ext sqlx.ExtContext, couponID int) error {
	_, err := ext.ExecContext(ctx, `
		UPDATE topup_coupons SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1
	`, couponID)
	return err
}

func (r *SQLRepository) GetUsageByID(ctx context.Context, ext sqlx.ExtContext, usageID int) (*Usage, error) {
	u := &Usage{}
	err := sqlx.GetContext(ctx, ext, u, `SELECT * FROM coupon_usages WHERE id = $1`, usageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUsageNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *SQLRepository) Create(ctx context.Context, c *Coupon) (*Coupon, error) {
	created := &Coupon{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO topup_coupons
		  (code, discount_type, discount_value, applicable_plans, min_purchase_cents,
		   max_discount_cents, bonus_cents, valid_from, valid_till, usage_limit,
		   per_user_limit, eligible_user_types, specific_users, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING *
	`, NormalizeCode(c.Code), c.DiscountType, c.DiscountValue, c.ApplicablePlans,
		c.MinPurchaseCents, c.MaxDiscountCents, c.BonusCents, c.ValidFrom, c.ValidTill,
		c.UsageLimit, c.PerUserLimit, c.EligibleUserTypes, c.SpecificUsers, c.IsActive,
	).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *SQLRepository) Update(ctx context.Context, c *Coupon) (*Coupon, error) {
	updated := &Coupon{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE topup_coupons
		SET discount_type = $2, discount_value = $3, applicable_plans = $4,
		    min_purchase_cents = $5, max_discount_cents = $6, bonus_cents = $7,
		    valid_from = $8, valid_till = $9, usage_limit = $10, per_user_limit = $11,
		    eligible_user_types = $12, specific_users = $13, is_active = $14,
		    updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING *
	`, c.ID, c.DiscountType, c.DiscountValue, c.ApplicablePlans,
		c.MinPurchaseCents, c.MaxDiscountCents, c.BonusCents, c.ValidFrom, c.ValidTill,
		c.UsageLimit, c.PerUserLimit, c.EligibleUserTypes, c.SpecificUsers, c.IsActive,
	).StructScan(updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *SQLRepository) SoftDelete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE topup_coupons SET is_deleted = TRUE, is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *SQLRepository) List(ctx context.Context, limit, offset int) ([]Coupon, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	coupons := []Coupon{}
	err := r.db.SelectContext(ctx, &coupons, `
		SELECT * FROM topup_coupons
		WHERE is_deleted = FALSE
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return coupons, err
}

// ListAvailableForUser returns active instruments currently in their validity
// window that the given user could apply. Per-user limits are not checked
// here; listing is advisory, validation happens at quote time.
func (r *SQLRepository) ListAvailableForUser(ctx context.Context, userID int, userType string) ([]Coupon, error) {
	coupons := []Coupon{}
	err := r.db.SelectContext(ctx, &coupons, `
		SELECT * FROM topup_coupons
		WHERE is_deleted = FALSE
		  AND is_active = TRUE
		  AND valid_from <= NOW()
		  AND valid_till >= NOW()
		  AND (usage_limit = 0 OR used_count < usage_limit)
		  AND (cardinality(eligible_user_types) = 0
		       OR 'all' = ANY(eligible_user_types)
		       OR $2 = ANY(eligible_user_types))
		  AND (cardinality(specific_users) = 0 OR $1 = ANY(specific_users))
		ORDER BY valid_till ASC
	`, userID, userType)
	return coupons, err
}

// UsageWithCode joins the usage row with the instrument's code for history
// listings.
type UsageWithCode struct {
	Usage
	Code string `db:"code" json:"code"`
}

func (r *SQLRepository) ListUsageHistory(ctx context.Context, userID int, limit, offset int) ([]UsageWithCode, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	usages := []UsageWithCode{}
	err := r.db.SelectContext(ctx, &usages, `
		SELECT cu.*, tc.code
		FROM coupon_usages cu
		JOIN topup_coupons tc ON tc.id = cu.coupon_id
		WHERE cu.user_id = $1
		ORDER BY cu.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return usages, err
}
