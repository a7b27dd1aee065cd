package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/pocketpay/internal/obs"
	"github.com/noah-isme/pocketpay/internal/store"
)

var (
	// ErrUnauthenticated means no caller identity was supplied.
	ErrUnauthenticated = errors.New("status: unauthenticated")
	// ErrNotFound means the payment does not exist.
	ErrNotFound = errors.New("status: payment not found")
	// ErrPermissionDenied means the caller is neither payer nor payee.
	ErrPermissionDenied = errors.New("status: permission denied")
)

// PaymentStatus is the read-only view returned to payment participants.
type PaymentStatus struct {
	ID          string              `json:"id"`
	Status      store.PaymentStatus `json:"status"`
	AmountCents int64               `json:"amount_cents"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Reader is the subset of the store the status service needs.
type Reader interface {
	GetPayment(ctx context.Context, id string) (store.Payment, error)
}

// Service answers "where is my money" queries. Strictly read-only: it never
// mutates payment state.
type Service struct {
	Store Reader
}

// GetStatus returns the payment view for the calling participant. Existence
// is checked before authorization so an attacker probing random ids learns
// nothing from the distinction; both payer and payee may read.
func (s Service) GetStatus(ctx context.Context, callerID, paymentID string) (PaymentStatus, error) {
	result := "ok"
	defer func() {
		if obs.StatusQueryTotal != nil {
			obs.StatusQueryTotal.WithLabelValues(result).Inc()
		}
	}()

	if strings.TrimSpace(callerID) == "" {
		result = "unauthenticated"
		return PaymentStatus{}, ErrUnauthenticated
	}

	payment, err := s.Store.GetPayment(ctx, paymentID)
	if errors.Is(err, pgx.ErrNoRows) {
		result = "not_found"
		return PaymentStatus{}, fmt.Errorf("%w: %s", ErrNotFound, paymentID)
	}
	if err != nil {
		result = "error"
		return PaymentStatus{}, fmt.Errorf("status: lookup payment: %w", err)
	}

	if callerID != payment.PayerID && callerID != payment.PayeeID {
		result = "denied"
		return PaymentStatus{}, ErrPermissionDenied
	}

	return PaymentStatus{
		ID:          payment.ID,
		Status:      payment.Status,
		AmountCents: payment.AmountCents,
		UpdatedAt:   payment.UpdatedAt,
	}, nil
}
