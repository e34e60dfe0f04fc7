package wallet

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupWalletMock(t *testing.T) (*SQLRepository, *sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, sqlxDB, mock, closer
}

func walletColumns() []string {
	return []string{
		"id", "user_id", "balance_cents", "reserved_cents", "currency", "status",
		"last_transaction_at", "created_at", "updated_at",
	}
}

func addWalletRow(rows *sqlmock.Rows, id, userID int, balance int64, status string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, userID, balance, int64(0), "INR", status, nil, now, now)
}

func transactionColumns() []string {
	return []string{
		"id", "wallet_id", "user_id", "type", "direction", "amount_cents",
		"balance_before", "balance_after", "currency", "status", "idempotency_key",
		"provider", "provider_payment_id", "provider_order_id", "raw_external",
		"reference_id", "note", "metadata", "created_at",
	}
}

func addTransactionRow(rows *sqlmock.Rows, id, walletID, userID int, amount, before, after int64, idemKey *string) *sqlmock.Rows {
	return rows.AddRow(
		id, walletID, userID, "topup", "credit", amount,
		before, after, "INR", "completed", idemKey,
		nil, nil, nil, nil,
		nil, "", nil, time.Now(),
	)
}

func TestEnsureWallet_WhenNotExists(t *testing.T) {
	repo, _, mock, closer := setupWalletMock(t)
	defer closer()

	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1`)).
		WithArgs(10).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`)).
		WithArgs(10).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1`)).
		WithArgs(10).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 5, 10, 0, "active"))

	w, err := repo.EnsureWallet(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 5, w.ID)
	require.Equal(t, int64(0), w.BalanceCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureWallet_WhenExists(t *testing.T) {
	repo, _, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1`)).
		WithArgs(10).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 5, 10, 2500, "active"))

	w, err := repo.EnsureWallet(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, int64(2500), w.BalanceCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransaction_Credit(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(20).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 7, 20, 2000, "active"))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallets`)).
		WithArgs(int64(12000), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO wallet_transactions`)).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumns()), 1, 7, 20, 10000, 2000, 12000, nil))

	entry, err := repo.ApplyTransaction(ctx, db, ApplyParams{
		UserID:      20,
		Type:        TypeTopup,
		Direction:   DirectionCredit,
		AmountCents: 10000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2000), entry.BalanceBefore)
	require.Equal(t, int64(12000), entry.BalanceAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransaction_DebitInsufficient(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(20).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 7, 20, 500, "active"))

	_, err := repo.ApplyTransaction(context.Background(), db, ApplyParams{
		UserID:      20,
		Type:        TypePayment,
		Direction:   DirectionDebit,
		AmountCents: 1000,
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransaction_HoldMovesFundsToReserved(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(20).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 7, 20, 5000, "active"))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallets`)).
		WithArgs(int64(3000), int64(2000), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO wallet_transactions`)).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumns()), 3, 7, 20, 2000, 5000, 3000, nil))

	_, err := repo.ApplyTransaction(context.Background(), db, ApplyParams{
		UserID:      20,
		Type:        TypeHold,
		Direction:   DirectionDebit,
		AmountCents: 2000,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransaction_ReleaseBeyondReserved(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(20).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 7, 20, 5000, "active"))

	_, err := repo.ApplyTransaction(context.Background(), db, ApplyParams{
		UserID:      20,
		Type:        TypeRelease,
		Direction:   DirectionCredit,
		AmountCents: 1000,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransaction_IdempotencyShortCircuit(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	key := "topup-42"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallet_transactions WHERE idempotency_key = $1 AND user_id = $2`)).
		WithArgs(key, 20).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumns()), 9, 7, 20, 10000, 0, 10000, &key))

	entry, err := repo.ApplyTransaction(context.Background(), db, ApplyParams{
		UserID:         20,
		Type:           TypeTopup,
		Direction:      DirectionCredit,
		AmountCents:    10000,
		IdempotencyKey: &key,
	})
	require.NoError(t, err)
	require.Equal(t, 9, entry.ID)
	// no wallet lock, no update, no insert
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransaction_SameKeyDifferentUserWrites(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	// User 30 reusing user 20's key must not be handed user 20's entry; the
	// scoped lookup misses and a fresh ledger write happens for user 30.
	key := "topup-42"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallet_transactions WHERE idempotency_key = $1 AND user_id = $2`)).
		WithArgs(key, 30).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(30).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 8, 30, 0, "active"))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallets`)).
		WithArgs(int64(10000), 8).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO wallet_transactions`)).
		WillReturnRows(addTransactionRow(sqlmock.NewRows(transactionColumns()), 10, 8, 30, 10000, 0, 10000, &key))

	entry, err := repo.ApplyTransaction(context.Background(), db, ApplyParams{
		UserID:         30,
		Type:           TypeTopup,
		Direction:      DirectionCredit,
		AmountCents:    10000,
		IdempotencyKey: &key,
	})
	require.NoError(t, err)
	require.Equal(t, 30, entry.UserID)
	require.Equal(t, 10, entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransaction_InactiveWallet(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(20).
		WillReturnRows(addWalletRow(sqlmock.NewRows(walletColumns()), 7, 20, 2000, "frozen"))

	_, err := repo.ApplyTransaction(context.Background(), db, ApplyParams{
		UserID:      20,
		Type:        TypeTopup,
		Direction:   DirectionCredit,
		AmountCents: 1000,
	})
	require.ErrorIs(t, err, ErrWalletInactive)
}

func TestApplyTransaction_RejectsNonPositiveAmount(t *testing.T) {
	repo, db, _, closer := setupWalletMock(t)
	defer closer()

	_, err := repo.ApplyTransaction(context.Background(), db, ApplyParams{
		UserID:      20,
		Type:        TypeTopup,
		Direction:   DirectionCredit,
		AmountCents: 0,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFindTransactionByPaymentID_NotFound(t *testing.T) {
	repo, db, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM wallet_transactions WHERE provider_payment_id = $1`)).
		WithArgs("pay_404").
		WillReturnError(sql.ErrNoRows)

	entry, err := repo.FindTransactionByPaymentID(context.Background(), db, "pay_404")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestListTransactions_NoWallet(t *testing.T) {
	repo, _, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM wallets WHERE user_id = $1`)).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	txs, err := repo.ListTransactions(context.Background(), 99, 50, 0, "")
	require.NoError(t, err)
	require.Empty(t, txs)
}
