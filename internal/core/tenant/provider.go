package tenant

import (
	"context"
	"fmt"
)

// ConnStringProvider yields the connection string for one tenant database.
// Implementations may hit the meta-database, so callers pass a context.
type ConnStringProvider interface {
	ConnString(ctx context.Context) (string, error)
}

// Static is a fixed connection string, useful for tests and single-tenant
// deployments.
type Static string

func (s Static) ConnString(_ context.Context) (string, error) {
	return string(s), nil
}

// RegistryProvider resolves a tenant's connection string through the Registry.
// The tenant must exist and be active at resolve time.
type RegistryProvider struct {
	registry   Registry
	tenantID   string
	dbUser     string
	dbPassword string
}

func NewRegistryProvider(registry Registry, tenantID, dbUser, dbPassword string) *RegistryProvider {
	return &RegistryProvider{
		registry:   registry,
		tenantID:   tenantID,
		dbUser:     dbUser,
		dbPassword: dbPassword,
	}
}

// Resolve loads the tenant row and verifies it is usable.
func (p *RegistryProvider) Resolve(ctx context.Context) (*Tenant, error) {
	t, err := p.registry.GetByID(ctx, p.tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, fmt.Errorf("%w: status=%s", ErrTenantNotActive, t.Status)
	}
	return t, nil
}

func (p *RegistryProvider) ConnString(ctx context.Context) (string, error) {
	t, err := p.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return t.DSN(p.dbUser, p.dbPassword), nil
}

// ContextProvider builds the connection string from the tenant already
// resolved and stored in the context (see WithTenant). Intended for code
// running downstream of tenant-resolving middleware.
type ContextProvider struct {
	dbUser     string
	dbPassword string
}

func NewContextProvider(dbUser, dbPassword string) *ContextProvider {
	return &ContextProvider{dbUser: dbUser, dbPassword: dbPassword}
}

func (p *ContextProvider) ConnString(ctx context.Context) (string, error) {
	t := GetTenant(ctx)
	if t == nil {
		return "", ErrNoTenantInContext
	}
	if !t.IsActive() {
		return "", fmt.Errorf("%w: status=%s", ErrTenantNotActive, t.Status)
	}
	return t.DSN(p.dbUser, p.dbPassword), nil
}

var (
	_ ConnStringProvider = Static("")
	_ ConnStringProvider = (*RegistryProvider)(nil)
	_ ConnStringProvider = (*ContextProvider)(nil)
)
