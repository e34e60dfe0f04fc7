package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"offerpay/internal/metrics"

	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("wallet is not active")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// EnsureWallet returns the user's wallet, creating it with a zero balance on
// first access. Safe under concurrent first access: the insert is
// ON CONFLICT DO NOTHING and the select is retried.
func (r *SQLRepository) EnsureWallet(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *SQLRepository) GetByUserID(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

type ApplyParams struct {
	UserID         int
	Type           TransactionType
	Direction      Direction
	AmountCents    int64
	IdempotencyKey *string
	External       *ExternalRef
	ReferenceID    *int
	Note           string
	Metadata       map[string]string
}

// ApplyTransaction writes one ledger entry and the matching balance update.
// It must run on a transaction handle whenever it is part of a larger atomic
// section (settlement); both the entry and the balance commit or roll back
// together.
//
// If the idempotency key already has a ledger entry, that entry is returned
// unchanged and nothing is written.
func (r *SQLRepository) ApplyTransaction(ctx context.Context, ext sqlx.ExtContext, p ApplyParams) (*Transaction, error) {
	if p.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	if p.IdempotencyKey != nil && *p.IdempotencyKey != "" {
		// Scoped by user: another user replaying the same key must not be
		// short-circuited onto someone else's ledger entry.
		existing := &Transaction{}
		err := sqlx.GetContext(ctx, ext, existing,
			`SELECT * FROM wallet_transactions WHERE idempotency_key = $1 AND user_id = $2`,
			*p.IdempotencyKey, p.UserID,
		)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	w := Wallet{}
	err := sqlx.GetContext(ctx, ext, &w,
		`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`,
		p.UserID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err = ext.ExecContext(ctx,
			`INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
			p.UserID,
		); err != nil {
			return nil, err
		}
		err = sqlx.GetContext(ctx, ext, &w,
			`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`,
			p.UserID,
		)
	}
	if err != nil {
		return nil, err
	}

	if w.Status != StatusActive {
		return nil, fmt.Errorf("%w: wallet %d is %s", ErrWalletInactive, w.ID, w.Status)
	}

	balanceBefore := w.BalanceCents
	var balanceAfter int64
	if p.Direction == DirectionCredit {
		balanceAfter = balanceBefore + p.AmountCents
	} else {
		balanceAfter = balanceBefore - p.AmountCents
	}
	if balanceAfter < 0 {
		return nil, ErrInsufficientBalance
	}

	// Hold parks the debited amount in reserved; release returns it.
	reservedAfter := w.ReservedCents
	switch p.Type {
	case TypeHold:
		reservedAfter += p.AmountCents
	case TypeRelease:
		reservedAfter -= p.AmountCents
		if reservedAfter < 0 {
			return nil, fmt.Errorf("%w: release exceeds reserved funds", ErrInvalidAmount)
		}
	}

	if reservedAfter != w.ReservedCents {
		_, err = ext.ExecContext(ctx,
			`UPDATE wallets
			 SET balance_cents = $1, reserved_cents = $2, last_transaction_at = NOW(), updated_at = NOW()
			 WHERE id = $3`,
			balanceAfter, reservedAfter, w.ID,
		)
	} else {
		_, err = ext.ExecContext(ctx,
			`UPDATE wallets
			 SET balance_cents = $1, last_transaction_at = NOW(), updated_at = NOW()
			 WHERE id = $2`,
			balanceAfter, w.ID,
		)
	}
	if err != nil {
		return nil, err
	}

	var provider, paymentID, orderID *string
	var rawExternal []byte
	if p.External != nil {
		provider = &p.External.Provider
		if p.External.PaymentID != "" {
			paymentID = &p.External.PaymentID
		}
		if p.External.OrderID != "" {
			orderID = &p.External.OrderID
		}
		rawExternal = p.External.Raw
	}

	var metadata []byte
	if len(p.Metadata) > 0 {
		metadata, err = json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	entry := &Transaction{}
	err = sqlx.GetContext(ctx, ext, entry,
		`INSERT INTO wallet_transactions
		   (wallet_id, user_id, type, direction, amount_cents, balance_before, balance_after,
		    currency, status, idempotency_key, provider, provider_payment_id, provider_order_id,
		    raw_external, reference_id, note, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'completed', $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING *`,
		w.ID, p.UserID, p.Type, p.Direction, p.AmountCents, balanceBefore, balanceAfter,
		w.Currency, p.IdempotencyKey, provider, paymentID, orderID,
		rawExternal, p.ReferenceID, p.Note, metadata,
	)
	if err != nil {
		return nil, err
	}

	metrics.RecordLedgerEntry(string(p.Type), string(p.Direction))
	return entry, nil
}

// FindTransactionByPaymentID looks up a ledger entry by the provider payment
// id. Settlement runs this on its own transaction handle so the read sees
// writes made earlier in the same atomic section.
func (r *SQLRepository) FindTransactionByPaymentID(ctx context.Context, ext sqlx.ExtContext, paymentID string) (*Transaction, error) {
	entry := &Transaction{}
	err := sqlx.GetContext(ctx, ext, entry,
		`SELECT * FROM wallet_transactions WHERE provider_payment_id = $1`,
		paymentID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *SQLRepository) ListTransactions(ctx context.Context, userID int, limit, offset int, txType string) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var walletID int
	err := r.db.GetContext(ctx, &walletID, `SELECT id FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return []Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}

	txs := []Transaction{}
	if txType != "" {
		err = r.db.SelectContext(ctx, &txs, `
			SELECT * FROM wallet_transactions
			WHERE wallet_id = $1 AND type = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3 OFFSET $4
		`, walletID, txType, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &txs, `
			SELECT * FROM wallet_transactions
			WHERE wallet_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		`, walletID, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	return txs, nil
}
