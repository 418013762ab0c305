// Package tenant provides the collaborators a session factory is built from in a
// Schema-per-Tenant architecture. Each tenant is scoped to its own PostgreSQL
// schema; the registry maps tenants to their schema and database coordinates, and
// providers turn a tenant record into a connection string.
package tenant

import (
	"fmt"
	"strings"
	"time"
)

// Status represents tenant lifecycle state.
type Status string

const (
	// StatusActive - tenant can accept connections
	StatusActive Status = "active"

	// StatusSuspended - tenant is temporarily disabled (e.g., payment issues)
	StatusSuspended Status = "suspended"

	// StatusDeleted - tenant is marked for deletion
	StatusDeleted Status = "deleted"
)

// Tenant represents a tenant record from the meta-database.
type Tenant struct {
	ID          string    `db:"id"`
	Slug        string    `db:"slug"`         // URL-safe identifier
	DisplayName string    `db:"display_name"` // Human-readable name
	SchemaName  string    `db:"schema_name"`  // PostgreSQL schema holding tenant data
	DBName      string    `db:"db_name"`      // Database name
	DBHost      string    `db:"db_host"`      // Database host
	DBPort      int       `db:"db_port"`      // Database port
	Status      Status    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// IsActive returns true if tenant can accept connections.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// DSN builds the PostgreSQL connection string for this tenant's database.
// Schema scoping is applied separately, when the session is opened.
func (t *Tenant) DSN(user, password string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		user, password, t.DBHost, t.DBPort, t.DBName,
	)
}

// DSNWithSSL builds the PostgreSQL connection string with SSL enabled.
func (t *Tenant) DSNWithSSL(user, password, sslMode string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, t.DBHost, t.DBPort, t.DBName, sslMode,
	)
}

// CreateTenantInput contains data for registering a new tenant.
type CreateTenantInput struct {
	Slug        string
	DisplayName string
	DBName      string // Optional, defaults to the meta-database's shared database
	DBHost      string // Optional, defaults to localhost
	DBPort      int    // Optional, defaults to 5432
}

// Validate checks if input is valid.
func (i *CreateTenantInput) Validate() error {
	if i.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	i.Slug = strings.ToLower(i.Slug)
	if len(i.Slug) > 55 {
		return fmt.Errorf("slug must be 55 characters or less")
	}
	if i.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	return nil
}

// GenerateSchemaName creates the schema name from the slug.
// Format: tenant_<slug>. PostgreSQL identifiers cap at 63 bytes, hence the
// slug length limit in Validate.
func (i *CreateTenantInput) GenerateSchemaName() string {
	return "tenant_" + strings.ToLower(i.Slug)
}
