package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// schemaNamePattern matches unquoted PostgreSQL identifiers.
var schemaNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// validateSchemaName rejects names that cannot be used as an unquoted
// identifier. Identifiers cap at 63 bytes.
func validateSchemaName(schema string) error {
	if len(schema) > 63 || !schemaNamePattern.MatchString(schema) {
		return fmt.Errorf("%w: %q", ErrInvalidSchemaName, schema)
	}
	return nil
}

// builder returns a squirrel builder with PostgreSQL placeholder format.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// SchemaExists reports whether a schema with the given name exists in the
// target database. The check runs on its own short-lived connection, so
// the cached connection and any transaction on it stay untouched. The name
// is bound as a query parameter and needs no identifier validation.
func (f *Factory) SchemaExists(ctx context.Context, schema string) (bool, error) {
	if f.closed {
		return false, ErrFactoryClosed
	}

	sql, args, err := builder().
		Select("schema_name").
		From("information_schema.schemata").
		Where(squirrel.Eq{"schema_name": schema}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build schemata query: %w", err)
	}

	conn, err := f.dial(ctx, f.connCfg.Copy())
	if err != nil {
		return false, fmt.Errorf("open schema check connection: %w", err)
	}
	defer conn.Close(ctx)

	var name string
	err = conn.QueryRow(ctx, sql, args...).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query schemata: %w", err)
	}
	return true, nil
}

// CreateSchema creates the schema if it does not exist yet. The name goes
// into the statement as an identifier, so it must pass validateSchemaName.
// Runs on the cached connection: tenant provisioning flows typically
// create the schema and continue working in it.
func (f *Factory) CreateSchema(ctx context.Context, schema string) error {
	if err := validateSchemaName(schema); err != nil {
		return err
	}

	conn, err := f.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// ListSchemas returns the names of all non-system schemas in the target
// database, ordered alphabetically. Like SchemaExists it dials its own
// short-lived connection.
func (f *Factory) ListSchemas(ctx context.Context) ([]string, error) {
	if f.closed {
		return nil, ErrFactoryClosed
	}

	sql, args, err := builder().
		Select("schema_name").
		From("information_schema.schemata").
		Where(squirrel.NotEq{"schema_name": "information_schema"}).
		Where(squirrel.NotLike{"schema_name": "pg_%"}).
		OrderBy("schema_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build schemata query: %w", err)
	}

	conn, err := f.dial(ctx, f.connCfg.Copy())
	if err != nil {
		return nil, fmt.Errorf("open schema list connection: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query schemata: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema name: %w", err)
		}
		schemas = append(schemas, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemata: %w", err)
	}
	return schemas, nil
}
