package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	EnsureWallet(ctx context.Context, userID int) (*Wallet, error)
	GetByUserID(ctx context.Context, userID int) (*Wallet, error)
	ApplyTransaction(ctx context.Context, ext sqlx.ExtContext, p ApplyParams) (*Transaction, error)
	FindTransactionByPaymentID(ctx context.Context, ext sqlx.ExtContext, paymentID string) (*Transaction, error)
	ListTransactions(ctx context.Context, userID int, limit, offset int, txType string) ([]Transaction, error)
}
