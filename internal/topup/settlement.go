package topup

import (
	"context"
	"fmt"

	"offerpay/internal/coupon"
	"offerpay/internal/db"
	"offerpay/internal/gateway"
	"offerpay/internal/logger"
	"offerpay/internal/metrics"
	"offerpay/internal/wallet"

	"github.com/jmoiron/sqlx"
)

// Settlement converts a confirmed gateway payment into a wallet credit and a
// finalized attempt, exactly once. Everything runs in a single database
// transaction; duplicate delivery and partial-failure replays are absorbed by
// the completed short-circuit, the payment-id lookup and the ledger's
// idempotency key.
type Settlement struct {
	db       *sqlx.DB
	attempts Repository
	wallets  wallet.Repository
	coupons  coupon.Repository
	gateway  gateway.Client
}

func NewSettlement(
	database *sqlx.DB,
	attempts Repository,
	wallets wallet.Repository,
	coupons coupon.Repository,
	gw gateway.Client,
) *Settlement {
	return &Settlement{
		db:       database,
		attempts: attempts,
		wallets:  wallets,
		coupons:  coupons,
		gateway:  gw,
	}
}

type SettlementResult struct {
	Attempt          *Attempt
	Transaction      *wallet.Transaction
	AlreadyProcessed bool
}

// ProcessSuccessfulPayment settles one confirmed payment. Safe to call any
// number of times with the same order and payment ids.
func (s *Settlement) ProcessSuccessfulPayment(ctx context.Context, providerOrderID, providerPaymentID string, rawPayment []byte) (*SettlementResult, error) {
	if providerOrderID == "" || providerPaymentID == "" {
		return nil, fmt.Errorf("%w: missing payment identifiers", gateway.ErrOrderRejected)
	}

	result := &SettlementResult{}
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		attempt, err := s.attempts.GetByProviderOrderIDForUpdate(ctx, tx, providerOrderID)
		if err != nil {
			return err
		}
		result.Attempt = attempt

		if attempt.Status == StatusCompleted {
			result.AlreadyProcessed = true
			return nil
		}

		// Recovery path: the ledger entry may exist from a run that crashed
		// before the attempt was finalized. The lookup goes through this
		// transaction's handle so it sees our own prior writes.
		existing, err := s.wallets.FindTransactionByPaymentID(ctx, tx, providerPaymentID)
		if err != nil {
			return err
		}
		if existing != nil {
			// The recovered entry must belong to this attempt's user; a
			// payment id pointing at someone else's ledger entry means the
			// attempt was never credited and must not be finalized.
			if existing.UserID != attempt.UserID {
				return fmt.Errorf("payment %s settled for user %d, attempt %d belongs to user %d",
					providerPaymentID, existing.UserID, attempt.ID, attempt.UserID)
			}
			result.Transaction = existing
			result.AlreadyProcessed = true
			return s.finalize(ctx, tx, attempt, providerPaymentID, rawPayment)
		}

		entry, err := s.wallets.ApplyTransaction(ctx, tx, wallet.ApplyParams{
			UserID:         attempt.UserID,
			Type:           wallet.TypeTopup,
			Direction:      wallet.DirectionCredit,
			AmountCents:    attempt.CreditCents,
			IdempotencyKey: attempt.IdempotencyKey,
			ReferenceID:    &attempt.ID,
			Note:           "wallet top-up settlement",
			External: &wallet.ExternalRef{
				Provider:  attempt.Provider,
				PaymentID: providerPaymentID,
				OrderID:   providerOrderID,
				Raw:       rawPayment,
			},
		})
		if err != nil {
			return err
		}
		result.Transaction = entry

		return s.finalize(ctx, tx, attempt, providerPaymentID, rawPayment)
	})
	if err != nil {
		metrics.RecordSettlement("error")
		return nil, err
	}

	if result.AlreadyProcessed {
		metrics.RecordSettlement("already_processed")
	} else {
		metrics.RecordSettlement("credited")
		logger.Info("payment settled",
			"attempt_id", result.Attempt.ID,
			"order_id", providerOrderID,
			"payment_id", providerPaymentID,
			"credit_cents", result.Attempt.CreditCents,
		)
	}

	return result, nil
}

// finalize completes the attempt and redeems any linked coupon usage inside
// the caller's transaction.
func (s *Settlement) finalize(ctx context.Context, tx *sqlx.Tx, attempt *Attempt, providerPaymentID string, rawPayment []byte) error {
	if err := s.attempts.MarkCompleted(ctx, tx, attempt.ID, providerPaymentID, rawPayment); err != nil {
		return err
	}

	if attempt.CouponUsageID == nil {
		return nil
	}

	usage, err := s.coupons.GetUsageByID(ctx, tx, *attempt.CouponUsageID)
	if err != nil {
		return err
	}
	if usage.Status == coupon.UsageRedeemed {
		return nil
	}

	if err := s.coupons.MarkUsageRedeemed(ctx, tx, usage.ID, attempt.ID); err != nil {
		return err
	}
	// usedCount moves only here, never at quote time.
	return s.coupons.IncrementUsedCount(ctx, tx, usage.CouponID)
}

// ProcessFailedPayment marks the attempt failed after a terminal gateway
// failure event. Attempts that already reached a terminal status are left
// untouched, so a stray failure event after a successful capture cannot
// regress a completed attempt.
func (s *Settlement) ProcessFailedPayment(ctx context.Context, providerOrderID, reason string) error {
	if providerOrderID == "" {
		return fmt.Errorf("%w: missing order identifier", gateway.ErrOrderRejected)
	}

	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		attempt, err := s.attempts.GetByProviderOrderIDForUpdate(ctx, tx, providerOrderID)
		if err != nil {
			return err
		}
		if attempt.Status.IsTerminal() {
			return nil
		}

		var msg *string
		if reason != "" {
			msg = &reason
		}
		if err := s.attempts.UpdateStatus(ctx, tx, attempt.ID, StatusFailed, msg); err != nil {
			return err
		}

		// Release the applied usage so the per-user slot frees up.
		if attempt.CouponUsageID != nil {
			if err := s.coupons.MarkUsageStatus(ctx, tx, *attempt.CouponUsageID, coupon.UsageFailed); err != nil {
				return err
			}
		}
		metrics.RecordSettlement("failed_payment")
		logger.Info("payment failed",
			"attempt_id", attempt.ID,
			"order_id", providerOrderID,
			"reason", reason,
		)
		return nil
	})
}

// VerifyAndSettle is the synchronous confirmation path: the client posts the
// gateway's checkout result and we settle after checking the payment
// signature. Reuses the same exactly-once settlement.
func (s *Settlement) VerifyAndSettle(ctx context.Context, userID int, providerOrderID, providerPaymentID, signature string) (*SettlementResult, error) {
	if err := s.gateway.VerifyPaymentSignature(providerOrderID, providerPaymentID, signature); err != nil {
		return nil, err
	}

	// The order must belong to the caller.
	if _, err := s.attempts.GetByUserAndOrderID(ctx, userID, providerOrderID); err != nil {
		return nil, err
	}

	return s.ProcessSuccessfulPayment(ctx, providerOrderID, providerPaymentID, nil)
}
