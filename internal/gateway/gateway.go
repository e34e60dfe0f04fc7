package gateway

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrOrderRejected     = errors.New("gateway rejected the order")
	ErrMissingSecret     = errors.New("gateway secret is not configured")
)

// ReceiptMaxLen is the provider's limit on the receipt field.
const ReceiptMaxLen = 40

type OrderRequest struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

type Order struct {
	OrderID     string          `json:"id"`
	AmountCents int64           `json:"amount"`
	Currency    string          `json:"currency"`
	Receipt     string          `json:"receipt"`
	Raw         json.RawMessage `json:"-"`
}

// Client is the single boundary to the external payment gateway: the outbound
// order call and both inbound signature checks live behind it so the services
// are testable without network access.
type Client interface {
	Provider() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// VerifyWebhookSignature checks the HMAC of the raw, unparsed webhook
	// body against the dedicated webhook secret.
	VerifyWebhookSignature(rawBody []byte, signature string) error
	// VerifyPaymentSignature checks the client-side confirmation signature
	// computed over "<orderID>|<paymentID>".
	VerifyPaymentSignature(orderID, paymentID, signature string) error
}

// TrimReceipt bounds a receipt token to the provider's length limit.
func TrimReceipt(receipt string) string {
	if len(receipt) > ReceiptMaxLen {
		return receipt[:ReceiptMaxLen]
	}
	return receipt
}
