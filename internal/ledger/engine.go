package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pocketpay/internal/fraud"
	"github.com/noah-isme/pocketpay/internal/obs"
	"github.com/noah-isme/pocketpay/internal/provider"
	"github.com/noah-isme/pocketpay/internal/store"
)

var (
	// ErrPaymentNotFound means the webhook references a payment this ledger
	// has never seen. Retrying the delivery cannot fix it.
	ErrPaymentNotFound = errors.New("ledger: payment not found")
	// ErrInvalidPayer means the payment's payer failed the identity check.
	ErrInvalidPayer = errors.New("ledger: invalid payer")
	// ErrAmountMismatch means the provider-verified amount disagrees with the
	// ledger amount. Zero tolerance; the transition is refused.
	ErrAmountMismatch = errors.New("ledger: amount mismatch")
)

// Terminal reports whether err can never be fixed by the provider redelivering
// the same event. Terminal failures are acknowledged so retries stop.
func Terminal(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrInvalidPayer) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, provider.ErrOrderNotFound)
}

// TxRunner abstracts store.Runner so the engine is testable with a stub.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q store.Querier) error) error
}

// Publisher receives domain events after the ledger transaction commits.
type Publisher interface {
	Publish(ctx context.Context, topic, aggregateID string, payload any)
}

// Event topics emitted after a committed transition.
const (
	TopicPaymentCompleted  = "payment.completed"
	TopicPaymentFailed     = "payment.failed"
	TopicFraudAlertCreated = "fraud.alert_created"
)

// ProcessParams identifies one verified webhook delivery to apply.
type ProcessParams struct {
	EventID   string
	PaymentID string
	OrderID   string
	NewStatus store.PaymentStatus
}

// Outcome describes what the transaction did.
type Outcome struct {
	Duplicate    bool
	Transitioned bool
	Status       store.PaymentStatus
	FraudScore   int
	AlertCreated bool
}

// Engine applies webhook-driven status transitions atomically. Everything in
// ProcessEvent happens inside one serializable transaction: the delivery
// record, the payment update and any fraud alert commit together or not at
// all. The delivery record is the sole idempotency authority.
type Engine struct {
	Tx       TxRunner
	Provider provider.Reconciler
	Scorer   fraud.Scorer
	Bus      Publisher
	Logger   zerolog.Logger
	Now      func() time.Time
}

// ProcessEvent runs the ledger transaction for one webhook event. The body
// may execute more than once on serialization conflicts, so it re-reads all
// inputs on every attempt and keeps side effects inside the transaction;
// event publication happens only after commit.
func (e *Engine) ProcessEvent(ctx context.Context, p ProcessParams) (Outcome, error) {
	var out Outcome
	err := e.Tx.InTx(ctx, func(q store.Querier) error {
		out = Outcome{}

		delivery, err := q.GetWebhookDelivery(ctx, p.EventID)
		if err == nil {
			out.Duplicate = true
			out.Status = delivery.ResultingStatus
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lookup delivery: %w", err)
		}

		payment, err := q.GetPayment(ctx, p.PaymentID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, p.PaymentID)
		}
		if err != nil {
			return fmt.Errorf("lookup payment: %w", err)
		}

		payer, err := q.GetUser(ctx, payment.PayerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: payer %s not found", ErrInvalidPayer, payment.PayerID)
		}
		if err != nil {
			return fmt.Errorf("lookup payer: %w", err)
		}
		if payer.Role != "payer" {
			return fmt.Errorf("%w: user %s has role %q", ErrInvalidPayer, payer.ID, payer.Role)
		}

		if payment.Status.Terminal() {
			// The payment already reached a final state through another
			// delivery. Record this event id so redeliveries short-circuit,
			// but leave the payment untouched.
			e.Logger.Warn().
				Str("payment_id", payment.ID).
				Str("event_id", p.EventID).
				Str("status", string(payment.Status)).
				Str("requested_status", string(p.NewStatus)).
				Msg("webhook_for_terminal_payment")
			out.Status = payment.Status
			return q.InsertWebhookDelivery(ctx, store.InsertWebhookDeliveryParams{
				EventID:         p.EventID,
				PaymentID:       payment.ID,
				ResultingStatus: payment.Status,
			})
		}

		orderRef := p.OrderID
		if orderRef == "" {
			orderRef = payment.ProviderOrderID.String
		}
		order, err := e.Provider.GetOrder(ctx, orderRef)
		if err != nil {
			return fmt.Errorf("reconcile order %q: %w", orderRef, err)
		}

		if order.AmountCents != payment.AmountCents {
			// Possible tampering or an upstream bug. Both amounts go in the
			// log; the payment stays exactly as it was.
			e.Logger.Error().
				Str("payment_id", payment.ID).
				Str("event_id", p.EventID).
				Str("order_id", orderRef).
				Int64("ledger_amount_cents", payment.AmountCents).
				Int64("provider_amount_cents", order.AmountCents).
				Msg("security_incident_amount_mismatch")
			return fmt.Errorf("%w: ledger %d vs provider %d",
				ErrAmountMismatch, payment.AmountCents, order.AmountCents)
		}

		if err := q.UpdatePaymentVerification(ctx, store.UpdatePaymentVerificationParams{
			ID:                  payment.ID,
			Status:              p.NewStatus,
			VerifiedAmountCents: order.AmountCents,
			ProviderStatus:      order.Status,
			ProviderOrderID:     orderRef,
		}); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		if err := q.InsertWebhookDelivery(ctx, store.InsertWebhookDeliveryParams{
			EventID:         p.EventID,
			PaymentID:       payment.ID,
			ResultingStatus: p.NewStatus,
		}); err != nil {
			return fmt.Errorf("record delivery: %w", err)
		}
		out.Transitioned = true
		out.Status = p.NewStatus

		out.FraudScore = e.Scorer.Score(order.AmountCents, order.PayerCountry, e.now())
		if e.Scorer.Exceeds(out.FraudScore) {
			if err := q.InsertFraudAlert(ctx, store.InsertFraudAlertParams{
				PaymentID: payment.ID,
				PayerID:   payment.PayerID,
				Score:     int32(out.FraudScore),
			}); err != nil {
				return fmt.Errorf("record fraud alert: %w", err)
			}
			out.AlertCreated = true
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if out.AlertCreated && obs.FraudAlertsTotal != nil {
		obs.FraudAlertsTotal.Inc()
	}
	if out.Transitioned {
		e.publish(ctx, p, out)
	}
	return out, nil
}

func (e *Engine) publish(ctx context.Context, p ProcessParams, out Outcome) {
	if e.Bus == nil {
		return
	}
	payload := map[string]any{
		"payment_id": p.PaymentID,
		"event_id":   p.EventID,
		"status":     string(out.Status),
	}
	switch out.Status {
	case store.PaymentStatusCompleted:
		e.Bus.Publish(ctx, TopicPaymentCompleted, p.PaymentID, payload)
	case store.PaymentStatusFailed:
		e.Bus.Publish(ctx, TopicPaymentFailed, p.PaymentID, payload)
	}
	if out.AlertCreated {
		e.Bus.Publish(ctx, TopicFraudAlertCreated, p.PaymentID, map[string]any{
			"payment_id": p.PaymentID,
			"event_id":   p.EventID,
			"score":      out.FraudScore,
		})
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
