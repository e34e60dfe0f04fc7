package coupon

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	CountUserUsages(ctx context.Context, couponID, userID int) (int, error)
	CreateUsage(ctx context.Context, ext sqlx.ExtContext, p CreateUsageParams) (*Usage, error)
	MarkUsageRedeemed(ctx context.Context, ext sqlx.ExtContext, usageID, attemptID int) error
	MarkUsageStatus(ctx context.Context, ext sqlx.ExtContext, usageID int, status UsageStatus) error
	IncrementUsedCount(ctx context.Context, ext sqlx.ExtContext, couponID int) error
	GetUsageByID(ctx context.Context, ext sqlx.ExtContext, usageID int) (*Usage, error)
	Create(ctx context.Context, c *Coupon) (*Coupon, error)
	Update(ctx context.Context, c *Coupon) (*Coupon, error)
	SoftDelete(ctx context.Context, id int) error
	List(ctx context.Context, limit, offset int) ([]Coupon, error)
	ListAvailableForUser(ctx context.Context, userID int, userType string) ([]Coupon, error)
	ListUsageHistory(ctx context.Context, userID int, limit, offset int) ([]UsageWithCode, error)
}
