// Package postgres provides PostgreSQL session infrastructure: a
// connection factory that lazily opens and reuses a single connection,
// manages one transaction on it with rollback-on-abandon, checks schema
// existence, and classifies deadlock errors. A separate pgxpool-backed
// pool serves the tenant meta-database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pgsession/internal/core/tenant"
	"pgsession/pkg/logger"
)

// Factory owns a single lazily opened connection and at most one
// transaction on it. A stale cached handle (closed by external code) is
// detected and replaced on the next Open. Close rolls back an uncommitted
// transaction before releasing the connection and is safe to call twice.
//
// A Factory is not safe for concurrent use. Like the *pgx.Conn it wraps,
// it expects sequential access from one goroutine at a time.
type Factory struct {
	connCfg *pgx.ConnConfig
	dial    DialFunc
	log     *logger.Logger

	conn      Conn
	tx        Tx
	committed bool
	closed    bool
}

// New creates a factory from the given configuration. The connection
// string is parsed here: malformed input fails with ErrInvalidConnString
// and no factory is returned. No connection is opened until first use.
func New(cfg Config, log *logger.Logger) (*Factory, error) {
	connCfg, err := parseConnConfig(cfg)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.Default()
	}
	dial := cfg.Dial
	if dial == nil {
		dial = pgxDial
	}

	return &Factory{
		connCfg: connCfg,
		dial:    dial,
		log:     log.WithComponent("connection-factory"),
	}, nil
}

// NewFromProvider obtains the connection string from a tenant provider,
// then behaves as New. Provider failures are wrapped distinctly from
// parse failures so callers can tell them apart.
func NewFromProvider(ctx context.Context, provider tenant.ConnStringProvider, cfg Config, log *logger.Logger) (*Factory, error) {
	connString, err := provider.ConnString(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve connection string: %w", err)
	}
	cfg.ConnString = connString
	return New(cfg, log)
}

// Open returns the cached connection, dialing a fresh one when none exists
// yet or the cached handle was closed since the last call. Calling Open
// twice without an intervening close returns the same connection with no
// second handshake.
func (f *Factory) Open(ctx context.Context) (Conn, error) {
	if f.closed {
		return nil, ErrFactoryClosed
	}

	if f.conn == nil || f.conn.IsClosed() {
		conn, err := f.dial(ctx, f.connCfg)
		if err != nil {
			return nil, fmt.Errorf("open connection: %w", err)
		}
		f.conn = conn
		f.log.Debugw("connection opened",
			"host", f.connCfg.Host,
			"database", f.connCfg.Database,
		)
	}

	return f.conn, nil
}

// OpenSchema sets the search_path option to schema and opens the
// connection. The option applies at dial time: a connection that is
// already open keeps the search path it was opened with. An empty schema
// is equivalent to Open.
func (f *Factory) OpenSchema(ctx context.Context, schema string) (Conn, error) {
	if schema == "" {
		return f.Open(ctx)
	}
	if err := validateSchemaName(schema); err != nil {
		return nil, err
	}
	f.connCfg.RuntimeParams["search_path"] = schema
	return f.Open(ctx)
}

// Ping provisions the connection if needed and verifies it is alive.
func (f *Factory) Ping(ctx context.Context) error {
	conn, err := f.Open(ctx)
	if err != nil {
		return err
	}
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Querier returns the active transaction when one is in flight, otherwise
// the cached connection. It returns nil before the first Open.
func (f *Factory) Querier() Querier {
	if f.tx != nil && !f.committed {
		return f.tx
	}
	if f.conn != nil {
		return f.conn
	}
	return nil
}

// Close releases the factory's resources. An uncommitted transaction is
// rolled back first, then the connection is closed, then the factory is
// marked closed for good. Repeat calls are no-ops. Teardown runs on a
// background context so it completes even when the caller's context was
// cancelled.
func (f *Factory) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	ctx := context.Background()
	var errs []error

	if f.tx != nil {
		if !f.committed {
			if err := f.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
				f.log.Errorw("rollback on close failed", "error", err)
				errs = append(errs, fmt.Errorf("rollback transaction: %w", err))
			}
		}
		f.tx = nil
		f.committed = false
	}

	if f.conn != nil {
		if err := f.conn.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		f.conn = nil
	}

	return errors.Join(errs...)
}
