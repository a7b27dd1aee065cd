package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pocketpay/internal/common"
)

// Worker consumes notification tasks and renders outbound messages.
type Worker struct {
	Mail common.EmailSender
	From string
	// ReviewInbox receives fraud alert notifications. Empty disables them.
	ReviewInbox string
	Logger      zerolog.Logger
}

// Register attaches the worker's handlers to the asynq mux.
func (w Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPaymentStatus, w.HandlePaymentStatus)
	mux.HandleFunc(TaskFraudAlert, w.HandleFraudAlert)
}

// HandlePaymentStatus notifies participants about a payment transition.
func (w Worker) HandlePaymentStatus(_ context.Context, t *asynq.Task) error {
	var p PaymentStatusPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("notify: decode payment status task: %w", err)
	}
	w.Logger.Info().
		Str("payment_id", p.PaymentID).
		Str("status", p.Status).
		Msg("payment_status_notification")

	to := extractRecipient(t.Payload())
	if to == "" || w.Mail == nil {
		return nil
	}
	subject := "Your payment is " + p.Status
	body := fmt.Sprintf("Payment %s changed to %s at %s.",
		p.PaymentID, p.Status, time.Now().UTC().Format(time.RFC3339))
	return w.Mail.Send(to, subject, body)
}

// HandleFraudAlert routes a fraud alert to the manual review inbox.
func (w Worker) HandleFraudAlert(_ context.Context, t *asynq.Task) error {
	var p FraudAlertPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("notify: decode fraud alert task: %w", err)
	}
	w.Logger.Warn().
		Str("payment_id", p.PaymentID).
		Int("score", p.Score).
		Msg("fraud_alert_notification")

	if w.ReviewInbox == "" || w.Mail == nil {
		return nil
	}
	subject := fmt.Sprintf("Fraud alert: payment %s scored %d", p.PaymentID, p.Score)
	body := fmt.Sprintf("Payment %s triggered a fraud score of %d and is pending review.", p.PaymentID, p.Score)
	return w.Mail.Send(w.ReviewInbox, subject, body)
}

func extractRecipient(raw []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"email", "recipient", "payer_email", "payee_email"} {
		if val, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
