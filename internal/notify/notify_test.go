package notify_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pocketpay/internal/common"
	"github.com/noah-isme/pocketpay/internal/ledger"
	"github.com/noah-isme/pocketpay/internal/notify"
	"github.com/noah-isme/pocketpay/internal/store"
)

type stubClient struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func domainEvent(t *testing.T, topic string, payload any) store.DomainEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return store.DomainEvent{Topic: topic, AggregateID: "pay_1", Payload: raw}
}

func TestNotifyEnqueuesPaymentStatusTask(t *testing.T) {
	client := &stubClient{}
	enq := notify.Enqueuer{Client: client, Logger: zerolog.Nop()}

	ev := domainEvent(t, ledger.TopicPaymentCompleted, notify.PaymentStatusPayload{
		PaymentID: "pay_1", EventID: "tx-123", Status: "completed",
	})
	require.NoError(t, enq.Notify(context.Background(), ev))
	require.Len(t, client.tasks, 1)
	require.Equal(t, notify.TaskPaymentStatus, client.tasks[0].Type())
}

func TestNotifyEnqueuesFraudAlertTask(t *testing.T) {
	client := &stubClient{}
	enq := notify.Enqueuer{Client: client, Logger: zerolog.Nop()}

	ev := domainEvent(t, ledger.TopicFraudAlertCreated, notify.FraudAlertPayload{
		PaymentID: "pay_1", EventID: "tx-123", Score: 75,
	})
	require.NoError(t, enq.Notify(context.Background(), ev))
	require.Len(t, client.tasks, 1)
	require.Equal(t, notify.TaskFraudAlert, client.tasks[0].Type())
}

func TestNotifySkipsUnknownTopics(t *testing.T) {
	client := &stubClient{}
	enq := notify.Enqueuer{Client: client}

	ev := domainEvent(t, "payment.created", map[string]string{"payment_id": "pay_1"})
	require.NoError(t, enq.Notify(context.Background(), ev))
	require.Empty(t, client.tasks)
}

func TestTaskIDConflictIsBenign(t *testing.T) {
	client := &stubClient{err: asynq.ErrTaskIDConflict}
	enq := notify.Enqueuer{Client: client, Logger: zerolog.Nop()}

	ev := domainEvent(t, ledger.TopicPaymentFailed, notify.PaymentStatusPayload{
		PaymentID: "pay_1", EventID: "tx-123", Status: "failed",
	})
	require.NoError(t, enq.Notify(context.Background(), ev))
}

func TestHandleFraudAlertSendsToReviewInbox(t *testing.T) {
	mail := &common.InMemoryEmail{}
	w := notify.Worker{Mail: mail, ReviewInbox: "review@pocketpay.test", Logger: zerolog.Nop()}

	task, err := notify.NewFraudAlertTask(notify.FraudAlertPayload{PaymentID: "pay_1", Score: 75})
	require.NoError(t, err)
	require.NoError(t, w.HandleFraudAlert(context.Background(), task))
	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "review@pocketpay.test", mail.Outbox[0].To)
	require.Contains(t, mail.Outbox[0].Subject, "pay_1")
}

func TestHandlePaymentStatusWithoutRecipientIsNoop(t *testing.T) {
	mail := &common.InMemoryEmail{}
	w := notify.Worker{Mail: mail, Logger: zerolog.Nop()}

	task, err := notify.NewPaymentStatusTask(notify.PaymentStatusPayload{PaymentID: "pay_1", Status: "completed"})
	require.NoError(t, err)
	require.NoError(t, w.HandlePaymentStatus(context.Background(), task))
	require.Empty(t, mail.Outbox)
}

func TestHandlersRejectMalformedPayloads(t *testing.T) {
	w := notify.Worker{Logger: zerolog.Nop()}
	bad := asynq.NewTask(notify.TaskPaymentStatus, []byte("{nope"))
	require.Error(t, w.HandlePaymentStatus(context.Background(), bad))
	require.Error(t, w.HandleFraudAlert(context.Background(), bad))
}
