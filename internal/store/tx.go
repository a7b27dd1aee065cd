package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pocketpay/internal/obs"
)

// Serialization failure and deadlock SQLSTATEs; both are safe to retry
// because the transaction body re-reads all its inputs on each attempt.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// Runner executes a function inside a serializable transaction, retrying a
// bounded number of times when the database reports a conflicting write.
// This is the optimistic-concurrency layer: the transaction body performs all
// reads before its writes and holds no external locks.
type Runner struct {
	Pool       *pgxpool.Pool
	MaxRetries int
	Backoff    time.Duration
	Logger     zerolog.Logger
}

// InTx runs fn against a transaction-scoped Querier. fn may be invoked more
// than once; it must not carry side effects outside the transaction.
func (r Runner) InTx(ctx context.Context, fn func(q Querier) error) error {
	if r.Pool == nil {
		return errors.New("store: pool not configured")
	}
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if obs.LedgerTxRetries != nil {
				obs.LedgerTxRetries.Inc()
			}
			timer := time.NewTimer(backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		lastErr = r.once(ctx, fn)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		r.Logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("ledger_tx_conflict")
	}
	return lastErr
}

func (r Runner) once(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
}
