package postgres

import "errors"

var (
	// ErrInvalidConnString is returned when a connection string cannot be parsed.
	ErrInvalidConnString = errors.New("invalid connection string")

	// ErrFactoryClosed is returned when a factory is used after Close.
	ErrFactoryClosed = errors.New("connection factory is closed")

	// ErrTxInProgress is returned when Begin is called while an uncommitted
	// transaction is still active.
	ErrTxInProgress = errors.New("transaction already in progress")

	// ErrInvalidSchemaName is returned when a schema name is not a valid
	// PostgreSQL identifier.
	ErrInvalidSchemaName = errors.New("invalid schema name")
)
