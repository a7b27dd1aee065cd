package notify

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names consumed by the worker.
const (
	TaskPaymentStatus = "notify:payment_status"
	TaskFraudAlert    = "notify:fraud_alert"

	// QueueName is the asynq queue all notification tasks land on.
	QueueName = "notifications"
)

// PaymentStatusPayload describes a payment transition to notify about.
type PaymentStatusPayload struct {
	PaymentID string `json:"payment_id"`
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
}

// FraudAlertPayload describes a fraud alert awaiting review.
type FraudAlertPayload struct {
	PaymentID string `json:"payment_id"`
	EventID   string `json:"event_id"`
	Score     int    `json:"score"`
}

// NewPaymentStatusTask builds the asynq task for a payment transition.
func NewPaymentStatusTask(p PaymentStatusPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentStatus, data), nil
}

// NewFraudAlertTask builds the asynq task for a fraud alert.
func NewFraudAlertTask(p FraudAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFraudAlert, data), nil
}

func defaultOptions(taskID string) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
	}
	if taskID != "" {
		// Task ids dedupe enqueues when the same ledger event fires twice.
		opts = append(opts, asynq.TaskID(taskID))
	}
	return opts
}
