package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX matches the query surface shared by pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a connection or transaction with typed ledger operations.
type Queries struct {
	db DBTX
}

// New constructs Queries over the provided connection source.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// UpdatePaymentVerificationParams carries the single ledger write applied per webhook.
type UpdatePaymentVerificationParams struct {
	ID                  string
	Status              PaymentStatus
	VerifiedAmountCents int64
	ProviderStatus      string
	ProviderOrderID     string
}

// InsertWebhookDeliveryParams creates the idempotency marker for an event.
type InsertWebhookDeliveryParams struct {
	EventID         string
	PaymentID       string
	ResultingStatus PaymentStatus
}

// InsertFraudAlertParams records a score that exceeded the review threshold.
type InsertFraudAlertParams struct {
	PaymentID string
	PayerID   string
	Score     int32
}

// InsertDomainEventParams persists an emitted event.
type InsertDomainEventParams struct {
	Topic       string
	AggregateID string
	Payload     []byte
}

// Querier is the ledger persistence surface consumed by the transaction
// engine and the status service. Implemented by *Queries; stubbed in tests.
type Querier interface {
	GetWebhookDelivery(ctx context.Context, eventID string) (WebhookDelivery, error)
	InsertWebhookDelivery(ctx context.Context, arg InsertWebhookDeliveryParams) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	UpdatePaymentVerification(ctx context.Context, arg UpdatePaymentVerificationParams) error
	GetUser(ctx context.Context, id string) (User, error)
	InsertFraudAlert(ctx context.Context, arg InsertFraudAlertParams) error
	InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error)
}

var _ Querier = (*Queries)(nil)

const getWebhookDelivery = `
SELECT event_id, payment_id, resulting_status, processed_at
FROM webhook_deliveries
WHERE event_id = $1
`

// GetWebhookDelivery fetches the idempotency marker for a provider event id.
func (q *Queries) GetWebhookDelivery(ctx context.Context, eventID string) (WebhookDelivery, error) {
	row := q.db.QueryRow(ctx, getWebhookDelivery, eventID)
	var d WebhookDelivery
	err := row.Scan(&d.EventID, &d.PaymentID, &d.ResultingStatus, &d.ProcessedAt)
	return d, err
}

const insertWebhookDelivery = `
INSERT INTO webhook_deliveries (event_id, payment_id, resulting_status)
VALUES ($1, $2, $3)
`

// InsertWebhookDelivery writes the idempotency marker. Rows are insert-only.
func (q *Queries) InsertWebhookDelivery(ctx context.Context, arg InsertWebhookDeliveryParams) error {
	_, err := q.db.Exec(ctx, insertWebhookDelivery, arg.EventID, arg.PaymentID, arg.ResultingStatus)
	return err
}

const getPayment = `
SELECT id, payer_id, payee_id, amount_cents, status, provider_order_id,
       verified_amount_cents, provider_status, verified_at, created_at, updated_at
FROM payments
WHERE id = $1
`

// GetPayment fetches a payment record by id.
func (q *Queries) GetPayment(ctx context.Context, id string) (Payment, error) {
	row := q.db.QueryRow(ctx, getPayment, id)
	var p Payment
	err := row.Scan(
		&p.ID, &p.PayerID, &p.PayeeID, &p.AmountCents, &p.Status, &p.ProviderOrderID,
		&p.VerifiedAmountCents, &p.ProviderStatus, &p.VerifiedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

const updatePaymentVerification = `
UPDATE payments
SET status = $2,
    verified_amount_cents = $3,
    provider_status = $4,
    provider_order_id = COALESCE(NULLIF($5, ''), provider_order_id),
    verified_at = now(),
    updated_at = now()
WHERE id = $1
`

// UpdatePaymentVerification applies the status transition plus verification
// metadata. The stored amount is deliberately not part of the statement.
func (q *Queries) UpdatePaymentVerification(ctx context.Context, arg UpdatePaymentVerificationParams) error {
	_, err := q.db.Exec(ctx, updatePaymentVerification,
		arg.ID, arg.Status, arg.VerifiedAmountCents, arg.ProviderStatus, arg.ProviderOrderID)
	return err
}

const getUser = `
SELECT id, role, verified
FROM users
WHERE id = $1
`

// GetUser fetches the minimal identity view for a user id.
func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var u User
	err := row.Scan(&u.ID, &u.Role, &u.Verified)
	return u, err
}

const insertFraudAlert = `
INSERT INTO fraud_alerts (payment_id, payer_id, score)
VALUES ($1, $2, $3)
`

// InsertFraudAlert records an alert in pending_review state.
func (q *Queries) InsertFraudAlert(ctx context.Context, arg InsertFraudAlertParams) error {
	_, err := q.db.Exec(ctx, insertFraudAlert, arg.PaymentID, arg.PayerID, arg.Score)
	return err
}

const insertDomainEvent = `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at
`

// InsertDomainEvent persists an emitted event and returns the stored row.
func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	row := q.db.QueryRow(ctx, insertDomainEvent, arg.Topic, arg.AggregateID, arg.Payload)
	var ev DomainEvent
	err := row.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}

// UUIDString formats a pgtype UUID for payloads and logs.
func UUIDString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	v, err := id.Value()
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
