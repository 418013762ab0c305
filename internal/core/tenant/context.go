package tenant

import (
	"context"
	"errors"
)

// ctxKey is the context key type for tenant values.
type ctxKey int

const tenantKey ctxKey = iota

// ErrNoTenantInContext is returned when a provider needs a tenant from the
// context and none was stored.
var ErrNoTenantInContext = errors.New("tenant not found in context")

// WithTenant stores tenant info in context. Request middleware resolves
// the tenant once and stashes it here for downstream code.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// GetTenant retrieves tenant from context, or nil.
func GetTenant(ctx context.Context) *Tenant {
	t, _ := ctx.Value(tenantKey).(*Tenant)
	return t
}

// GetTenantID returns tenant ID or empty string.
func GetTenantID(ctx context.Context) string {
	if t := GetTenant(ctx); t != nil {
		return t.ID
	}
	return ""
}
