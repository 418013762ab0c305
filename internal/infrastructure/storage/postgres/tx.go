package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pgsession/internal/core/tx"
)

var tracer = otel.Tracer("pgsession/tx")

// Compile-time checks that Factory implements the core transaction contracts.
var (
	_ tx.Manager         = (*Factory)(nil)
	_ tx.ReadOnlyManager = (*Factory)(nil)
)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// SerializableTxOptions for critical operations requiring serializable isolation.
func SerializableTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.Serializable
	return opts
}

// Begin provisions the connection and starts the factory's single managed
// transaction. While an uncommitted transaction is active a second Begin
// fails with ErrTxInProgress; after a commit, Begin starts a new
// transaction in its place.
func (f *Factory) Begin(ctx context.Context, opts TxOptions) error {
	if f.closed {
		return ErrFactoryClosed
	}
	if f.tx != nil && !f.committed {
		return ErrTxInProgress
	}

	conn, err := f.Open(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.Begin(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Set statement timeout for protection against runaway queries
	if opts.StatementTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	f.tx = tx
	f.committed = false
	return nil
}

// Commit commits the active transaction and marks it committed, so a later
// Close skips the rollback. Committing when no transaction is active, or
// twice in a row, is a no-op.
func (f *Factory) Commit(ctx context.Context) error {
	if f.tx == nil || f.committed {
		return nil
	}
	if err := f.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	f.committed = true
	return nil
}

// Rollback aborts the active transaction and clears it. Rolling back when
// no transaction is active, or after the transaction already completed on
// the server, is a no-op, which makes it safe to call from defer.
func (f *Factory) Rollback(ctx context.Context) error {
	if f.tx == nil {
		return nil
	}
	return f.rollback(ctx)
}

// rollback aborts f.tx unconditionally. Callers check f.tx != nil first.
func (f *Factory) rollback(ctx context.Context) error {
	err := f.tx.Rollback(ctx)
	f.tx = nil
	f.committed = false
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// RunInTransaction executes fn within a transaction: committed when fn
// returns nil, rolled back when it returns an error. A call made while the
// factory already has an uncommitted transaction joins it, and the outer
// owner decides its fate.
func (f *Factory) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.RunInTransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (f *Factory) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	// Join the transaction already in flight.
	if f.tx != nil && !f.committed {
		return fn(ctx)
	}

	if err := f.Begin(ctx, opts); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		// Use background context for rollback so it completes even if the
		// original context was cancelled.
		if rbErr := f.rollback(context.Background()); rbErr != nil {
			f.log.Errorw("rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	return f.Commit(ctx)
}

// ReadOnly executes fn in a read-only transaction.
func (f *Factory) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := DefaultTxOptions()
	opts.AccessMode = pgx.ReadOnly
	return f.RunInTransactionWithOptions(ctx, opts, fn)
}
