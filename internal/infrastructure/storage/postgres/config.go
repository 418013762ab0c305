package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Config holds connection factory configuration.
type Config struct {
	// ConnString in URL or key/value DSN form, as accepted by pgx.
	ConnString string

	// ConnectTimeout bounds the connection handshake.
	ConnectTimeout time.Duration

	// Dial overrides how physical connections are opened. Nil means the
	// default pgx dial.
	Dial DialFunc
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig(connString string) Config {
	return Config{
		ConnString:     connString,
		ConnectTimeout: 10 * time.Second,
	}
}

// parseConnConfig parses the connection string and applies overrides from cfg.
func parseConnConfig(cfg Config) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConnString, err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	return connCfg, nil
}
