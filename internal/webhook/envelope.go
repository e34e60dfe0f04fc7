package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingPaymentEntity = errors.New("webhook payload has no payment entity")

// PaymentEntity is the subset of the provider's payment object the settlement
// core needs.
type PaymentEntity struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount"`
}

// Envelope is the typed shape of an inbound webhook body. Payloads are parsed
// into it before any settlement logic sees them.
type Envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAtUnix int64 `json:"created_at"`
}

func ParseEnvelope(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if e.Event == "" {
		return nil, errors.New("webhook payload has no event")
	}
	return &e, nil
}

// IsPaymentSuccess reports whether the event signals a confirmed payment that
// should be settled.
func (e *Envelope) IsPaymentSuccess() bool {
	switch e.Event {
	case "payment.captured", "payment.authorized", "order.paid":
		return true
	}
	return false
}

// IsPaymentFailure reports whether the event signals a terminal payment
// failure for the referenced order.
func (e *Envelope) IsPaymentFailure() bool {
	return e.Event == "payment.failed"
}

// PaymentIDs extracts the provider identifiers settlement keys on.
func (e *Envelope) PaymentIDs() (orderID, paymentID string, err error) {
	entity := e.Payload.Payment.Entity
	if entity.ID == "" || entity.OrderID == "" {
		return "", "", ErrMissingPaymentEntity
	}
	return entity.OrderID, entity.ID, nil
}
