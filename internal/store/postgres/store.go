package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"clinicq/queue-service/internal/store"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
	now        func() time.Time
	retries    metric.Int64Counter
}

type Options struct {
	// TxMaxRetries bounds the attempts of one unit of work on write conflicts.
	TxMaxRetries int
	Now          func() time.Time
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	retries := options.TxMaxRetries
	if retries <= 0 {
		retries = 5
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &Store{pool: pool, maxRetries: retries, now: now}
	counter, err := otel.Meter("clinicq/queue-service/internal/store/postgres").Int64Counter(
		"store.tx.conflicts",
		metric.WithDescription("Units of work hit by a write conflict, by outcome"),
	)
	if err == nil {
		s.retries = counter
	}
	return s
}

func NewPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// WithinTx runs fn in a read committed transaction. Contended rows are taken
// with FOR UPDATE or the queue_days lock, so concurrent units wait instead of
// aborting. Deadlocks, unique violations and serialization failures re-run fn
// from scratch; once the retries are spent the caller gets
// store.ErrWriteConflict.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.runTx(ctx, fn)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			s.countConflict(ctx, "retried")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(s.maxRetries)))

	if retryable(err) {
		s.countConflict(ctx, "exhausted")
		return store.ErrWriteConflict
	}
	return err
}

func (s *Store) countConflict(ctx context.Context, outcome string) {
	if s.retries != nil {
		s.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	fnErr := fn(&pgTx{tx: tx, now: s.now})
	domainErr, keep := store.SplitCommit(fnErr)
	if fnErr != nil && !keep {
		return fnErr
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return domainErr
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return true
	}
	return false
}

func dateParam(t time.Time) string {
	return t.Format(time.DateOnly)
}
