package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pocketpay/internal/ledger"
	"github.com/noah-isme/pocketpay/internal/store"
)

// TaskClient is the slice of *asynq.Client the enqueuer uses.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns committed domain events into queued notification tasks.
// It implements events.Notifier.
type Enqueuer struct {
	Client TaskClient
	Logger zerolog.Logger
}

// Notify maps the event topic to a task and enqueues it. Unknown topics are
// skipped silently so new topics can be emitted before the worker learns them.
func (e Enqueuer) Notify(ctx context.Context, event store.DomainEvent) error {
	if e.Client == nil {
		return nil
	}

	var (
		task *asynq.Task
		err  error
	)
	switch event.Topic {
	case ledger.TopicPaymentCompleted, ledger.TopicPaymentFailed:
		var p PaymentStatusPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s payload: %w", event.Topic, err)
		}
		task, err = NewPaymentStatusTask(p)
	case ledger.TopicFraudAlertCreated:
		var p FraudAlertPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s payload: %w", event.Topic, err)
		}
		task, err = NewFraudAlertTask(p)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: build task for %s: %w", event.Topic, err)
	}

	taskID := ""
	if agg := event.AggregateID; agg != "" {
		taskID = event.Topic + ":" + agg
	}
	_, err = e.Client.EnqueueContext(ctx, task, defaultOptions(taskID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		e.Logger.Debug().Str("topic", event.Topic).Str("task_id", taskID).Msg("notification_already_enqueued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", event.Topic, err)
	}
	return nil
}
