package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query surface shared by connections and transactions.
// Callers that only read and write rows depend on this instead of concrete
// driver types.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the transaction handle managed by the factory. pgx.Tx satisfies it.
type Tx interface {
	Querier

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is a single database connection. The factory hands out this
// abstraction; code that needs driver-specific behavior unwraps the
// *DriverConn underneath.
type Conn interface {
	Querier

	// Begin starts a transaction with the given options.
	Begin(ctx context.Context, opts TxOptions) (Tx, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// IsClosed reports whether the connection was closed through any path.
	IsClosed() bool

	// Close terminates the connection.
	Close(ctx context.Context) error
}

// DriverConn adapts *pgx.Conn to the Conn interface.
type DriverConn struct {
	*pgx.Conn
}

// Begin starts a transaction, mapping options onto the driver.
func (c *DriverConn) Begin(ctx context.Context, opts TxOptions) (Tx, error) {
	tx, err := c.Conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Unwrap returns the underlying pgx.Conn for cases where it's needed.
func (c *DriverConn) Unwrap() *pgx.Conn {
	return c.Conn
}

var _ Conn = (*DriverConn)(nil)

// DialFunc opens a physical connection from a parsed configuration.
// Tests substitute it to run the factory without a server.
type DialFunc func(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error)

func pgxDial(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &DriverConn{Conn: conn}, nil
}
