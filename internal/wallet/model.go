package wallet

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

type WalletStatus string

const (
	StatusActive WalletStatus = "active"
	StatusFrozen WalletStatus = "frozen"
	StatusClosed WalletStatus = "closed"
)

type TransactionType string

const (
	TypeTopup      TransactionType = "topup"
	TypePayment    TransactionType = "payment"
	TypeRefund     TransactionType = "refund"
	TypePayout     TransactionType = "payout"
	TypeFee        TransactionType = "fee"
	TypeAdjustment TransactionType = "adjustment"
	TypeHold       TransactionType = "hold"
	TypeRelease    TransactionType = "release"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Wallet is created lazily on first access and never deleted, only
// deactivated via Status. BalanceCents is a cache over the ledger: it must
// always equal the sum of applied transactions and is updated in the same
// database transaction as each new ledger entry.
type Wallet struct {
	ID                int          `db:"id" json:"id"`
	UserID            int          `db:"user_id" json:"user_id"`
	BalanceCents      int64        `db:"balance_cents" json:"balance_cents"`
	ReservedCents     int64        `db:"reserved_cents" json:"reserved_cents"`
	Currency          string       `db:"currency" json:"currency"`
	Status            WalletStatus `db:"status" json:"status"`
	LastTransactionAt *time.Time   `db:"last_transaction_at" json:"last_transaction_at,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// Transaction is an immutable ledger entry. BalanceAfter is always
// BalanceBefore plus the signed amount.
type Transaction struct {
	ID                int             `db:"id" json:"id"`
	WalletID          int             `db:"wallet_id" json:"wallet_id"`
	UserID            int             `db:"user_id" json:"user_id"`
	Type              TransactionType `db:"type" json:"type"`
	Direction         Direction       `db:"direction" json:"direction"`
	AmountCents       int64           `db:"amount_cents" json:"amount_cents"`
	BalanceBefore     int64           `db:"balance_before" json:"balance_before"`
	BalanceAfter      int64           `db:"balance_after" json:"balance_after"`
	Currency          string          `db:"currency" json:"currency"`
	Status            string          `db:"status" json:"status"`
	IdempotencyKey    *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	Provider          *string         `db:"provider" json:"provider,omitempty"`
	ProviderPaymentID *string         `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	ProviderOrderID   *string         `db:"provider_order_id" json:"provider_order_id,omitempty"`
	RawExternal       types.JSONText  `db:"raw_external" json:"-"`
	ReferenceID       *int            `db:"reference_id" json:"reference_id,omitempty"`
	Note              string          `db:"note" json:"note"`
	Metadata          types.JSONText  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// ExternalRef links a ledger entry back to the payment-gateway objects that
// caused it.
type ExternalRef struct {
	Provider  string
	PaymentID string
	OrderID   string
	Raw       []byte
}

type Summary struct {
	BalanceCents      int64        `json:"balance_cents"`
	ReservedCents     int64        `json:"reserved_cents"`
	Currency          string       `json:"currency"`
	Status            WalletStatus `json:"status"`
	LastTransactionAt *time.Time   `json:"last_transaction_at,omitempty"`
}
