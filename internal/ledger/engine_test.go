package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pocketpay/internal/fraud"
	"github.com/noah-isme/pocketpay/internal/ledger"
	"github.com/noah-isme/pocketpay/internal/provider"
	"github.com/noah-isme/pocketpay/internal/store"
)

type stubStore struct {
	deliveries map[string]store.WebhookDelivery
	payments   map[string]store.Payment
	users      map[string]store.User
	alerts     []store.InsertFraudAlertParams
	updates    []store.UpdatePaymentVerificationParams
}

func newStubStore() *stubStore {
	return &stubStore{
		deliveries: map[string]store.WebhookDelivery{},
		payments:   map[string]store.Payment{},
		users:      map[string]store.User{},
	}
}

func (s *stubStore) GetWebhookDelivery(_ context.Context, eventID string) (store.WebhookDelivery, error) {
	d, ok := s.deliveries[eventID]
	if !ok {
		return store.WebhookDelivery{}, pgx.ErrNoRows
	}
	return d, nil
}

func (s *stubStore) InsertWebhookDelivery(_ context.Context, arg store.InsertWebhookDeliveryParams) error {
	s.deliveries[arg.EventID] = store.WebhookDelivery{
		EventID:         arg.EventID,
		PaymentID:       arg.PaymentID,
		ResultingStatus: arg.ResultingStatus,
		ProcessedAt:     time.Now(),
	}
	return nil
}

func (s *stubStore) GetPayment(_ context.Context, id string) (store.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return store.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *stubStore) UpdatePaymentVerification(_ context.Context, arg store.UpdatePaymentVerificationParams) error {
	s.updates = append(s.updates, arg)
	p := s.payments[arg.ID]
	p.Status = arg.Status
	s.payments[arg.ID] = p
	return nil
}

func (s *stubStore) GetUser(_ context.Context, id string) (store.User, error) {
	u, ok := s.users[id]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *stubStore) InsertFraudAlert(_ context.Context, arg store.InsertFraudAlertParams) error {
	s.alerts = append(s.alerts, arg)
	return nil
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg store.InsertDomainEventParams) (store.DomainEvent, error) {
	return store.DomainEvent{Topic: arg.Topic, AggregateID: arg.AggregateID, Payload: arg.Payload}, nil
}

type stubTx struct{ q store.Querier }

func (s stubTx) InTx(_ context.Context, fn func(q store.Querier) error) error { return fn(s.q) }

type fakeReconciler struct {
	order provider.Order
	err   error
	calls int
}

func (f *fakeReconciler) GetOrder(context.Context, string) (provider.Order, error) {
	f.calls++
	return f.order, f.err
}

type recordingBus struct {
	topics []string
}

func (b *recordingBus) Publish(_ context.Context, topic, _ string, _ any) {
	b.topics = append(b.topics, topic)
}

var noonUTC = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func newEngine(s *stubStore, r *fakeReconciler, bus *recordingBus) *ledger.Engine {
	return &ledger.Engine{
		Tx:       stubTx{q: s},
		Provider: r,
		Scorer:   fraud.Scorer{Threshold: 50, Location: time.UTC, HomeCountry: "US"},
		Bus:      bus,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return noonUTC },
	}
}

func seedPayment(s *stubStore, status store.PaymentStatus, amountCents int64) {
	s.payments["pay_1"] = store.Payment{
		ID:          "pay_1",
		PayerID:     "user_a",
		PayeeID:     "user_b",
		AmountCents: amountCents,
		Status:      status,
	}
	s.users["user_a"] = store.User{ID: "user_a", Role: "payer", Verified: true}
}

func captureCompleted() ledger.ProcessParams {
	return ledger.ProcessParams{
		EventID:   "WH-evt-1",
		PaymentID: "pay_1",
		OrderID:   "ORDER-1",
		NewStatus: store.PaymentStatusCompleted,
	}
}

func TestProcessEventAppliesVerifiedTransition(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusProcessing, 2500)
	rec := &fakeReconciler{order: provider.Order{ID: "ORDER-1", AmountCents: 2500, Status: "COMPLETED", PayerCountry: "US"}}
	bus := &recordingBus{}

	out, err := newEngine(s, rec, bus).ProcessEvent(context.Background(), captureCompleted())
	require.NoError(t, err)
	require.True(t, out.Transitioned)
	require.False(t, out.Duplicate)
	require.Equal(t, store.PaymentStatusCompleted, out.Status)
	require.Equal(t, 0, out.FraudScore)
	require.False(t, out.AlertCreated)

	require.Len(t, s.updates, 1)
	require.Equal(t, int64(2500), s.updates[0].VerifiedAmountCents)
	require.Equal(t, "ORDER-1", s.updates[0].ProviderOrderID)
	require.Contains(t, s.deliveries, "WH-evt-1")
	require.Equal(t, []string{ledger.TopicPaymentCompleted}, bus.topics)
}

func TestProcessEventIsIdempotentAcrossRedeliveries(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusProcessing, 2500)
	rec := &fakeReconciler{order: provider.Order{AmountCents: 2500, Status: "COMPLETED", PayerCountry: "US"}}
	bus := &recordingBus{}
	eng := newEngine(s, rec, bus)

	for i := 0; i < 3; i++ {
		out, err := eng.ProcessEvent(context.Background(), captureCompleted())
		require.NoError(t, err)
		require.Equal(t, store.PaymentStatusCompleted, out.Status)
		require.Equal(t, i > 0, out.Duplicate)
	}
	require.Len(t, s.updates, 1)
	require.Equal(t, 1, rec.calls)
	require.Equal(t, []string{ledger.TopicPaymentCompleted}, bus.topics)
}

func TestProcessEventAmountMismatchLeavesPaymentUntouched(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusProcessing, 2500)
	rec := &fakeReconciler{order: provider.Order{AmountCents: 9900, Status: "COMPLETED", PayerCountry: "US"}}

	_, err := newEngine(s, rec, &recordingBus{}).ProcessEvent(context.Background(), captureCompleted())
	require.ErrorIs(t, err, ledger.ErrAmountMismatch)
	require.True(t, ledger.Terminal(err))
	require.Empty(t, s.updates)
	require.Empty(t, s.alerts)
	require.NotContains(t, s.deliveries, "WH-evt-1")
	require.Equal(t, store.PaymentStatusProcessing, s.payments["pay_1"].Status)
}

func TestProcessEventPaymentNotFound(t *testing.T) {
	s := newStubStore()
	rec := &fakeReconciler{}

	_, err := newEngine(s, rec, &recordingBus{}).ProcessEvent(context.Background(), captureCompleted())
	require.ErrorIs(t, err, ledger.ErrPaymentNotFound)
	require.True(t, ledger.Terminal(err))
	require.Zero(t, rec.calls)
}

func TestProcessEventRejectsNonPayerRole(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusProcessing, 2500)
	s.users["user_a"] = store.User{ID: "user_a", Role: "payee"}
	rec := &fakeReconciler{}

	_, err := newEngine(s, rec, &recordingBus{}).ProcessEvent(context.Background(), captureCompleted())
	require.ErrorIs(t, err, ledger.ErrInvalidPayer)
	require.Zero(t, rec.calls)
}

func TestProcessEventTerminalPaymentRecordsDeliveryOnly(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusCompleted, 2500)
	rec := &fakeReconciler{}
	bus := &recordingBus{}

	params := captureCompleted()
	params.NewStatus = store.PaymentStatusFailed
	out, err := newEngine(s, rec, bus).ProcessEvent(context.Background(), params)
	require.NoError(t, err)
	require.False(t, out.Transitioned)
	require.Equal(t, store.PaymentStatusCompleted, out.Status)
	require.Zero(t, rec.calls)
	require.Empty(t, s.updates)
	require.Contains(t, s.deliveries, "WH-evt-1")
	require.Empty(t, bus.topics)
}

func TestProcessEventCreatesFraudAlert(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusProcessing, 30000)
	rec := &fakeReconciler{order: provider.Order{AmountCents: 30000, Status: "COMPLETED", PayerCountry: "DE"}}
	bus := &recordingBus{}
	eng := newEngine(s, rec, bus)
	eng.Now = func() time.Time { return time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC) }

	out, err := eng.ProcessEvent(context.Background(), captureCompleted())
	require.NoError(t, err)
	require.True(t, out.AlertCreated)
	require.Equal(t, 75, out.FraudScore)
	require.Len(t, s.alerts, 1)
	require.Equal(t, int32(75), s.alerts[0].Score)
	require.Equal(t, "user_a", s.alerts[0].PayerID)
	require.Equal(t, []string{ledger.TopicPaymentCompleted, ledger.TopicFraudAlertCreated}, bus.topics)
}

func TestProcessEventHighScoreWithoutAlertBelowThreshold(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusProcessing, 30000)
	rec := &fakeReconciler{order: provider.Order{AmountCents: 30000, Status: "COMPLETED", PayerCountry: "US"}}

	out, err := newEngine(s, rec, &recordingBus{}).ProcessEvent(context.Background(), captureCompleted())
	require.NoError(t, err)
	require.Equal(t, 50, out.FraudScore)
	require.False(t, out.AlertCreated)
	require.Empty(t, s.alerts)
}

func TestProcessEventProviderUnavailableIsRetryable(t *testing.T) {
	s := newStubStore()
	seedPayment(s, store.PaymentStatusProcessing, 2500)
	rec := &fakeReconciler{err: provider.ErrProviderUnavailable}

	_, err := newEngine(s, rec, &recordingBus{}).ProcessEvent(context.Background(), captureCompleted())
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
	require.False(t, ledger.Terminal(err))
	require.Empty(t, s.updates)
	require.NotContains(t, s.deliveries, "WH-evt-1")
}
