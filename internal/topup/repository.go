package topup

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrAttemptNotFound = errors.New("top-up attempt not found")
	// ErrAttemptFinal means the attempt is in a terminal status and refuses
	// further writes.
	ErrAttemptFinal = errors.New("top-up attempt already finalized")
)

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type CreateAttemptParams struct {
	UserID          int
	WalletID        int
	PlanID          *string
	PlanSnapshot    []byte
	CouponCode      *string
	CouponUsageID   *int
	BaseCents       int64
	DiscountCents   int64
	BonusCents      int64
	FinalCents      int64
	CreditCents     int64
	Provider        string
	ProviderOrderID string
	Status          AttemptStatus
	IdempotencyKey  *string
	RawRequest      []byte
	RawResponse     []byte
}

func (r *SQLRepository) CreateAttempt(ctx context.Context, ext sqlx.ExtContext, p CreateAttemptParams) (*Attempt, error) {
	a := &Attempt{}
	err := sqlx.GetContext(ctx, ext, a, `
		INSERT INTO topup_attempts
		  (user_id, wallet_id, plan_id, plan_snapshot, coupon_code, coupon_usage_id,
		   base_cents, discount_cents, bonus_cents, final_cents, credit_cents,
		   provider, provider_order_id, status, idempotency_key, raw_request, raw_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING *
	`, p.UserID, p.WalletID, p.PlanID, p.PlanSnapshot, p.CouponCode, p.CouponUsageID,
		p.BaseCents, p.DiscountCents, p.BonusCents, p.FinalCents, p.CreditCents,
		p.Provider, p.ProviderOrderID, p.Status, p.IdempotencyKey, p.RawRequest, p.RawResponse)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByIdempotencyKey returns the prior attempt for an idempotent re-quote,
// or nil when the key has not been seen.
func (r *SQLRepository) GetByIdempotencyKey(ctx context.Context, userID int, key string) (*Attempt, error) {
	a := &Attempt{}
	err := r.db.GetContext(ctx, a,
		`SELECT * FROM topup_attempts WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByProviderOrderIDForUpdate locks the attempt row for the settlement
// transaction, serializing duplicate webhook deliveries for the same order.
func (r *SQLRepository) GetByProviderOrderIDForUpdate(ctx context.Context, ext sqlx.ExtContext, providerOrderID string) (*Attempt, error) {
	a := &Attempt{}
	err := sqlx.GetContext(ctx, ext, a,
		`SELECT * FROM topup_attempts WHERE provider_order_id = $1 FOR UPDATE`,
		providerOrderID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *SQLRepository) GetByUserAndOrderID(ctx context.Context, userID int, providerOrderID string) (*Attempt, error) {
	a := &Attempt{}
	err := r.db.GetContext(ctx, a,
		`SELECT * FROM topup_attempts WHERE user_id = $1 AND provider_order_id = $2`,
		userID, providerOrderID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// MarkCompleted finalizes the attempt. The status guard keeps terminal rows
// immutable even if settlement is replayed.
func (r *SQLRepository) MarkCompleted(ctx context.Context, ext sqlx.ExtContext, attemptID int, providerPaymentID string, rawPayment []byte) error {
	res, err := ext.ExecContext(ctx, `
		UPDATE topup_attempts
		SET status = 'completed', provider_payment_id = $2, raw_response = COALESCE($3, raw_response),
		    error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled', 'refunded')
	`, attemptID, providerPaymentID, rawPayment)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAttemptFinal
	}
	return nil
}

func (r *SQLRepository) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, attemptID int, status AttemptStatus, errorMessage *string) error {
	res, err := ext.ExecContext(ctx, `
		UPDATE topup_attempts
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled', 'refunded')
	`, attemptID, status, errorMessage)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAttemptFinal
	}
	return nil
}

func (r *SQLRepository) ListByUser(ctx context.Context, userID int, limit, offset int) ([]Attempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	attempts := []Attempt{}
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT * FROM topup_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return attempts, err
}

// FailStale moves non-terminal attempts older than maxAge to failed. Stale
// here means the gateway never confirmed the payment within the window.
func (r *SQLRepository) FailStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE topup_attempts
		SET status = 'failed', error_message = 'expired without payment confirmation', updated_at = NOW()
		WHERE status IN ('created', 'coupon_applied', 'initiated', 'pending')
		  AND created_at < NOW() - ($1 * INTERVAL '1 second')
	`, int64(maxAge.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
