package topup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"offerpay/internal/coupon"
	"offerpay/internal/db"
	"offerpay/internal/gateway"
	"offerpay/internal/logger"
	"offerpay/internal/metrics"
	"offerpay/internal/wallet"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNoAmount        = errors.New("either plan_id or amount_cents is required")
	ErrInvalidCoupon   = errors.New("coupon is not valid")
	ErrCouponExhausted = errors.New("coupon usage limit reached for this user")
)

// Orchestrator turns a top-up request into a payment-gateway order and a
// persisted attempt reflecting the quoted terms.
type Orchestrator struct {
	db       *sqlx.DB
	attempts Repository
	wallets  wallet.Repository
	coupons  coupon.Repository
	engine   *coupon.Engine
	gateway  gateway.Client
}

func NewOrchestrator(
	database *sqlx.DB,
	attempts Repository,
	wallets wallet.Repository,
	coupons coupon.Repository,
	gw gateway.Client,
) *Orchestrator {
	return &Orchestrator{
		db:       database,
		attempts: attempts,
		wallets:  wallets,
		coupons:  coupons,
		engine:   coupon.NewEngine(),
		gateway:  gw,
	}
}

type CreateOrderRequest struct {
	UserID         int
	UserType       string
	PlanID         string
	AmountCents    int64
	CouponCode     string
	IdempotencyKey string
}

type CreateOrderResult struct {
	Attempt       *Attempt
	Order         *gateway.Order
	DiscountCents int64
	BonusCents    int64
	// AlreadyExisted is true when the idempotency key matched a prior
	// attempt; no new gateway order was created.
	AlreadyExisted bool
}

// CreateTopupOrder resolves the base amount, applies a coupon if given,
// creates the gateway order for the discounted charge and persists the
// attempt. The gateway call happens before the transactional section; if it
// fails nothing is persisted, so a retry is safe.
func (o *Orchestrator) CreateTopupOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.PlanID == "" && req.AmountCents <= 0 {
		return nil, ErrNoAmount
	}

	if req.IdempotencyKey != "" {
		prior, err := o.attempts.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return &CreateOrderResult{
				Attempt:        prior,
				DiscountCents:  prior.DiscountCents,
				BonusCents:     prior.BonusCents,
				AlreadyExisted: true,
			}, nil
		}
	}

	var (
		baseCents    int64
		creditCents  int64
		planID       *string
		planSnapshot []byte
	)
	if req.PlanID != "" {
		plan, err := FindPlan(req.PlanID)
		if err != nil {
			return nil, err
		}
		baseCents = plan.PriceCents
		creditCents = plan.CreditCents
		planID = &plan.ID
		planSnapshot, err = json.Marshal(plan)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot plan: %w", err)
		}
	} else {
		baseCents = req.AmountCents
		creditCents = req.AmountCents
	}

	w, err := o.wallets.EnsureWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var (
		coup     *coupon.Coupon
		discount coupon.Discount
	)
	finalCents := baseCents
	finalCredit := creditCents

	if req.CouponCode != "" {
		coup, err = o.coupons.GetByCode(ctx, req.CouponCode)
		if err != nil {
			if errors.Is(err, coupon.ErrCouponNotFound) {
				return nil, ErrInvalidCoupon
			}
			return nil, err
		}

		if !o.engine.IsValidForUser(coup, req.UserID, req.UserType) {
			return nil, ErrInvalidCoupon
		}

		if coup.PerUserLimit > 0 {
			used, err := o.coupons.CountUserUsages(ctx, coup.ID, req.UserID)
			if err != nil {
				return nil, err
			}
			if used >= coup.PerUserLimit {
				return nil, ErrCouponExhausted
			}
		}

		discount = o.engine.CalculateDiscount(coup, baseCents, req.PlanID)
		if !discount.Valid {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, discount.Reason)
		}

		finalCents = discount.FinalAmountCents
		// The plan's built-in extra credit survives the discount; the coupon
		// bonus stacks on top.
		finalCredit = creditCents - discount.DiscountCents + discount.BonusCents
	}

	receipt := gateway.TrimReceipt(fmt.Sprintf("topup_%d_%d", req.UserID, time.Now().Unix()))
	notes := map[string]string{
		"user_id":      strconv.Itoa(req.UserID),
		"base_cents":   strconv.FormatInt(baseCents, 10),
		"credit_cents": strconv.FormatInt(finalCredit, 10),
	}
	if coup != nil {
		notes["coupon_code"] = coup.Code
		notes["discount_cents"] = strconv.FormatInt(discount.DiscountCents, 10)
	}

	order, err := o.gateway.CreateOrder(ctx, gateway.OrderRequest{
		AmountCents: finalCents,
		Currency:    w.Currency,
		Receipt:     receipt,
		Notes:       notes,
	})
	if err != nil {
		logger.Error("gateway order creation failed",
			"user_id", req.UserID,
			"amount_cents", finalCents,
			"error", err,
		)
		return nil, err
	}

	rawRequest, _ := json.Marshal(map[string]interface{}{
		"plan_id":      req.PlanID,
		"amount_cents": req.AmountCents,
		"coupon_code":  req.CouponCode,
		"receipt":      receipt,
	})

	var attempt *Attempt
	err = db.WithTx(ctx, o.db, func(tx *sqlx.Tx) error {
		params := CreateAttemptParams{
			UserID:          req.UserID,
			WalletID:        w.ID,
			PlanID:          planID,
			PlanSnapshot:    planSnapshot,
			BaseCents:       baseCents,
			DiscountCents:   discount.DiscountCents,
			BonusCents:      discount.BonusCents,
			FinalCents:      finalCents,
			CreditCents:     finalCredit,
			Provider:        o.gateway.Provider(),
			ProviderOrderID: order.OrderID,
			Status:          StatusInitiated,
			RawRequest:      rawRequest,
			RawResponse:     order.Raw,
		}
		if req.IdempotencyKey != "" {
			params.IdempotencyKey = &req.IdempotencyKey
		}

		if coup != nil {
			usage, err := o.coupons.CreateUsage(ctx, tx, coupon.CreateUsageParams{
				CouponID:          coup.ID,
				UserID:            req.UserID,
				AmountBeforeCents: baseCents,
				DiscountCents:     discount.DiscountCents,
				BonusCents:        discount.BonusCents,
				FinalPaidCents:    finalCents,
				FinalCreditCents:  finalCredit,
			})
			if err != nil {
				return err
			}
			params.CouponCode = &coup.Code
			params.CouponUsageID = &usage.ID
			params.Status = StatusCouponApplied
		}

		created, err := o.attempts.CreateAttempt(ctx, tx, params)
		if err != nil {
			return err
		}
		attempt = created
		return nil
	})
	if err != nil {
		// A concurrent request with the same idempotency key won the insert;
		// return its attempt instead.
		if errors.Is(err, db.ErrDuplicate) && req.IdempotencyKey != "" {
			prior, getErr := o.attempts.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if getErr == nil && prior != nil {
				return &CreateOrderResult{
					Attempt:        prior,
					DiscountCents:  prior.DiscountCents,
					BonusCents:     prior.BonusCents,
					AlreadyExisted: true,
				}, nil
			}
		}
		return nil, err
	}

	metrics.RecordTopupOrder(o.gateway.Provider(), coup != nil)
	if coup != nil {
		metrics.RecordCouponApplied(string(coup.DiscountType), discount.DiscountCents)
	}

	logger.Info("top-up order created",
		"user_id", req.UserID,
		"attempt_id", attempt.ID,
		"order_id", order.OrderID,
		"final_cents", finalCents,
		"credit_cents", finalCredit,
	)

	return &CreateOrderResult{
		Attempt:       attempt,
		Order:         order,
		DiscountCents: discount.DiscountCents,
		BonusCents:    discount.BonusCents,
	}, nil
}
