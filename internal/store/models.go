package store

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// PaymentStatus enumerates the ledger states of a transfer attempt.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition away from the status is permitted.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// AlertStatus enumerates the review lifecycle of a fraud alert.
type AlertStatus string

const (
	AlertStatusPendingReview AlertStatus = "pending_review"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusDismissed     AlertStatus = "dismissed"
)

// Payment is one transfer attempt. The amount is set at creation and never
// mutated by webhook processing; only status and verification metadata change.
type Payment struct {
	ID                  string
	PayerID             string
	PayeeID             string
	AmountCents         int64
	Status              PaymentStatus
	ProviderOrderID     pgtype.Text
	VerifiedAmountCents pgtype.Int8
	ProviderStatus      pgtype.Text
	VerifiedAt          pgtype.Timestamptz
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// WebhookDelivery marks a provider event as processed. Its presence is the
// sole authority for "already processed"; rows are never updated or deleted
// inside the retention window.
type WebhookDelivery struct {
	EventID         string
	PaymentID       string
	ResultingStatus PaymentStatus
	ProcessedAt     time.Time
}

// FraudAlert flags a payment transition for manual review.
type FraudAlert struct {
	ID         pgtype.UUID
	PaymentID  string
	PayerID    string
	Score      int32
	Status     AlertStatus
	DetectedAt time.Time
}

// User is the minimal identity view the ledger needs. Account management
// lives elsewhere; this side treats the record as read-only.
type User struct {
	ID       string
	Role     string
	Verified bool
}

// DomainEvent is a persisted fact emitted after a ledger transition commits.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
}
