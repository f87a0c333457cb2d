package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DefaultQueryTimeout bounds every statement when no timeout is configured.
const DefaultQueryTimeout = 800 * time.Millisecond

const uniqueViolation = "23505"

type base struct {
	db      DB
	timeout time.Duration
}

func newBase(db DB, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return base{db: db, timeout: timeout}
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// inTx runs fn inside a transaction, committing when fn returns nil.
func (b base) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return dbError(op+": begin", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return dbError(op+": commit", err)
	}
	return nil
}

// dbError wraps a driver error with the operation name. Timeouts and
// connection failures become domain UNAVAILABLE errors.
func dbError(op string, err error) error {
	var connErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || errors.As(err, &connErr) {
		return domain.Unavailable(fmt.Errorf("%s: %w", op, err))
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}
