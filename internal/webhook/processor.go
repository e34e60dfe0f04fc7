package webhook

import (
	"context"
	"errors"
	"fmt"

	"offerpay/internal/gateway"
	"offerpay/internal/logger"
	"offerpay/internal/metrics"
	"offerpay/internal/topup"
)

// Settler is the slice of the settlement core the processor drives. Settling
// is idempotent, so re-delivery and replay both funnel through it safely.
type Settler interface {
	ProcessSuccessfulPayment(ctx context.Context, providerOrderID, providerPaymentID string, rawPayment []byte) (*topup.SettlementResult, error)
	ProcessFailedPayment(ctx context.Context, providerOrderID, reason string) error
}

// Processor turns inbound provider webhooks into settlements. Every delivery
// is persisted before any business logic runs, spoofed and malformed ones
// included, so the audit trail is complete regardless of outcome.
type Processor struct {
	records Repository
	gateway gateway.Client
	settler Settler
}

func NewProcessor(records Repository, gw gateway.Client, settler Settler) *Processor {
	return &Processor{
		records: records,
		gateway: gw,
		settler: settler,
	}
}

// Outcome reports what happened to one delivery.
type Outcome struct {
	Record           *Record
	Settled          bool
	AlreadyProcessed bool
	Ignored          bool
}

// HandleInbound processes one raw webhook delivery. The returned error means
// the caller should answer non-2xx so the provider retries; an ignored event
// returns a nil error.
func (p *Processor) HandleInbound(ctx context.Context, provider string, rawBody []byte, signature string) (*Outcome, error) {
	sigErr := p.gateway.VerifyWebhookSignature(rawBody, signature)

	// Best effort; the record is stored even when the body does not parse.
	event := ""
	env, parseErr := ParseEnvelope(rawBody)
	if parseErr == nil {
		event = env.Event
	}

	record, err := p.records.Insert(ctx, InsertParams{
		Provider:  provider,
		Event:     event,
		Signature: signature,
		RawBody:   rawBody,
	})
	if err != nil {
		metrics.RecordWebhookEvent(provider, "store_error")
		return nil, fmt.Errorf("failed to store webhook record: %w", err)
	}
	outcome := &Outcome{Record: record}

	if sigErr != nil {
		p.fail(ctx, record.ID, "signature verification failed")
		metrics.RecordWebhookEvent(provider, "invalid_signature")
		logger.Error("webhook signature verification failed",
			"provider", provider,
			"record_id", record.ID,
		)
		return outcome, gateway.ErrSignatureMismatch
	}

	if parseErr != nil {
		p.fail(ctx, record.ID, parseErr.Error())
		metrics.RecordWebhookEvent(provider, "malformed")
		return outcome, parseErr
	}

	if env.IsPaymentFailure() {
		if err := p.markAttemptFailed(ctx, record.ID, env); err != nil {
			metrics.RecordWebhookEvent(provider, "fail_error")
			return outcome, err
		}
		outcome.Ignored = true
		metrics.RecordWebhookEvent(provider, "payment_failed")
		return outcome, nil
	}

	if !env.IsPaymentSuccess() {
		// Not ours to settle; acknowledged so the provider stops retrying.
		if err := p.records.MarkProcessed(ctx, record.ID); err != nil {
			return outcome, err
		}
		outcome.Ignored = true
		metrics.RecordWebhookEvent(provider, "ignored")
		return outcome, nil
	}

	result, err := p.settle(ctx, record.ID, env, rawBody)
	if err != nil {
		metrics.RecordWebhookEvent(provider, "settle_error")
		return outcome, err
	}

	outcome.Settled = true
	outcome.AlreadyProcessed = result.AlreadyProcessed
	metrics.RecordWebhookEvent(provider, "settled")
	return outcome, nil
}

// Reprocess re-runs settlement for a stored record, used by the replay
// worker. The signature was verified at delivery time; a record that failed
// verification still carries the error and is skipped here.
func (p *Processor) Reprocess(ctx context.Context, recordID int) error {
	record, err := p.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if record.Processed {
		return nil
	}
	if record.ErrorMessage != nil && *record.ErrorMessage == "signature verification failed" {
		return gateway.ErrSignatureMismatch
	}

	env, err := ParseEnvelope(record.RawBody)
	if err != nil {
		return err
	}
	if env.IsPaymentFailure() {
		return p.markAttemptFailed(ctx, record.ID, env)
	}
	if !env.IsPaymentSuccess() {
		return p.records.MarkProcessed(ctx, record.ID)
	}

	_, err = p.settle(ctx, record.ID, env, record.RawBody)
	return err
}

func (p *Processor) settle(ctx context.Context, recordID int, env *Envelope, rawBody []byte) (*topup.SettlementResult, error) {
	orderID, paymentID, err := env.PaymentIDs()
	if err != nil {
		p.fail(ctx, recordID, err.Error())
		return nil, err
	}

	result, err := p.settler.ProcessSuccessfulPayment(ctx, orderID, paymentID, rawBody)
	if err != nil {
		// An unknown order is fatal for this delivery; retrying will not
		// make the attempt appear.
		p.fail(ctx, recordID, err.Error())
		if errors.Is(err, topup.ErrAttemptNotFound) {
			logger.Error("webhook references unknown order",
				"record_id", recordID,
				"order_id", orderID,
			)
		}
		return nil, err
	}

	if err := p.records.MarkProcessed(ctx, recordID); err != nil {
		return nil, err
	}
	return result, nil
}

// markAttemptFailed relays a terminal gateway failure onto the attempt. An
// unknown order is tolerated: failure events can arrive for orders created
// outside this system.
func (p *Processor) markAttemptFailed(ctx context.Context, recordID int, env *Envelope) error {
	orderID := env.Payload.Payment.Entity.OrderID
	if orderID == "" {
		p.fail(ctx, recordID, ErrMissingPaymentEntity.Error())
		return ErrMissingPaymentEntity
	}

	reason := env.Payload.Payment.Entity.Status
	if reason == "" {
		reason = "payment failed at gateway"
	}
	if err := p.settler.ProcessFailedPayment(ctx, orderID, reason); err != nil && !errors.Is(err, topup.ErrAttemptNotFound) {
		p.fail(ctx, recordID, err.Error())
		return err
	}
	return p.records.MarkProcessed(ctx, recordID)
}

func (p *Processor) fail(ctx context.Context, recordID int, message string) {
	if err := p.records.MarkFailed(ctx, recordID, message); err != nil {
		logger.Error("failed to mark webhook record", "record_id", recordID, "error", err)
	}
}
