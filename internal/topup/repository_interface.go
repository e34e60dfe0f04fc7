package topup

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreateAttempt(ctx context.Context, ext sqlx.ExtContext, p CreateAttemptParams) (*Attempt, error)
	GetByIdempotencyKey(ctx context.Context, userID int, key string) (*Attempt, error)
	GetByProviderOrderIDForUpdate(ctx context.Context, ext sqlx.ExtContext, providerOrderID string) (*Attempt, error)
	GetByUserAndOrderID(ctx context.Context, userID int, providerOrderID string) (*Attempt, error)
	MarkCompleted(ctx context.Context, ext sqlx.ExtContext, attemptID int, providerPaymentID string, rawPayment []byte) error
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, attemptID int, status AttemptStatus, errorMessage *string) error
	ListByUser(ctx context.Context, userID int, limit, offset int) ([]Attempt, error)
	FailStale(ctx context.Context, maxAge time.Duration) (int64, error)
}
