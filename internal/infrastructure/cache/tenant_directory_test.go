package cache

import (
	"context"
	"errors"
	"testing"

	"pgsession/internal/core/tenant"
)

// Mock objects

type fakeRegistry struct {
	tenants map[string]*tenant.Tenant

	getByIDCalls   int
	getBySlugCalls int
	listAllCalls   int
	updateCalls    int
	err            error
}

// Rows come back as fresh structs, the way real scans behave.
func (r *fakeRegistry) GetByID(_ context.Context, tenantID string) (*tenant.Tenant, error) {
	r.getByIDCalls++
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	c := *t
	return &c, nil
}

func (r *fakeRegistry) GetBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	r.getBySlugCalls++
	for _, t := range r.tenants {
		if t.Slug == slug {
			c := *t
			return &c, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (r *fakeRegistry) ListActive(_ context.Context) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	for _, t := range r.tenants {
		if t.IsActive() {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeRegistry) ListAll(_ context.Context) ([]*tenant.Tenant, error) {
	r.listAllCalls++
	if r.err != nil {
		return nil, r.err
	}
	var out []*tenant.Tenant
	for _, t := range r.tenants {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeRegistry) Create(_ context.Context, t *tenant.Tenant) error {
	t.ID = "generated-id"
	r.tenants[t.ID] = t
	return nil
}

func (r *fakeRegistry) UpdateStatusByID(_ context.Context, tenantID string, status tenant.Status) error {
	r.updateCalls++
	t, ok := r.tenants[tenantID]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	t.Status = status
	return nil
}

var _ tenant.Registry = (*fakeRegistry)(nil)

func seedRegistry() *fakeRegistry {
	return &fakeRegistry{tenants: map[string]*tenant.Tenant{
		"id-acme": {ID: "id-acme", Slug: "acme", SchemaName: "tenant_acme", Status: tenant.StatusActive},
		"id-gco":  {ID: "id-gco", Slug: "globex", SchemaName: "tenant_globex", Status: tenant.StatusSuspended},
	}}
}

// Tests

func TestDirectoryGetByID_ReadThrough(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	got, err := d.GetByID(ctx, "id-acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slug != "acme" {
		t.Errorf("unexpected tenant: %+v", got)
	}
	if registry.getByIDCalls != 1 {
		t.Errorf("expected 1 registry call, got %d", registry.getByIDCalls)
	}

	// Second lookup is served from cache
	if _, err := d.GetByID(ctx, "id-acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.getByIDCalls != 1 {
		t.Errorf("expected cached lookup, got %d registry calls", registry.getByIDCalls)
	}
}

func TestDirectoryGetByID_NotFound(t *testing.T) {
	d := NewTenantDirectory(nil, seedRegistry())

	_, err := d.GetByID(context.Background(), "missing")
	if !errors.Is(err, tenant.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestDirectoryGetByID_ReturnsCopy(t *testing.T) {
	d := NewTenantDirectory(nil, seedRegistry())
	ctx := context.Background()

	first, err := d.GetByID(ctx, "id-acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first.Slug = "mutated"

	second, err := d.GetByID(ctx, "id-acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Slug != "acme" {
		t.Errorf("cache entry was mutated: %+v", second)
	}
}

func TestDirectoryGetBySlug_ReadThrough(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	got, err := d.GetBySlug(ctx, "globex")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "id-gco" {
		t.Errorf("unexpected tenant: %+v", got)
	}

	if _, err := d.GetBySlug(ctx, "globex"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.getBySlugCalls != 1 {
		t.Errorf("expected cached lookup, got %d registry calls", registry.getBySlugCalls)
	}
}

func TestDirectoryLists_PassthroughUntilLoaded(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	all, err := d.ListAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 tenants, got %d", len(all))
	}
	if registry.listAllCalls != 1 {
		t.Errorf("expected passthrough, got %d registry calls", registry.listAllCalls)
	}
}

func TestDirectoryLists_ServedFromCacheAfterRefresh(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := d.ListAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 tenants, got %d", len(all))
	}
	if all[0].Slug != "acme" || all[1].Slug != "globex" {
		t.Errorf("expected slug-ordered listing, got %s, %s", all[0].Slug, all[1].Slug)
	}

	active, err := d.ListActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].Slug != "acme" {
		t.Errorf("unexpected active tenants: %+v", active)
	}

	if registry.listAllCalls != 1 {
		t.Errorf("expected lists from cache, got %d registry calls", registry.listAllCalls)
	}
}

func TestDirectoryRefresh_Error(t *testing.T) {
	registry := seedRegistry()
	registry.err = errors.New("meta database down")
	d := NewTenantDirectory(nil, registry)

	if err := d.Refresh(context.Background()); !errors.Is(err, registry.err) {
		t.Errorf("expected registry error, got %v", err)
	}
}

func TestDirectoryHandleNotification_SelectiveReload(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry.tenants["id-acme"].Status = tenant.StatusSuspended
	d.handleNotification(ctx, NotifyChannel, "id-acme")

	got, err := d.GetByID(ctx, "id-acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != tenant.StatusSuspended {
		t.Errorf("expected suspended after invalidation, got %s", got.Status)
	}
}

func TestDirectoryHandleNotification_RemovesMissingTenant(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	delete(registry.tenants, "id-gco")
	d.handleNotification(ctx, NotifyChannel, "id-gco")

	stats := d.GetStats()
	if stats.TenantsCached != 1 {
		t.Errorf("expected 1 cached tenant, got %d", stats.TenantsCached)
	}
}

func TestDirectoryHandleNotification_FullReload(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry.tenants["id-new"] = &tenant.Tenant{ID: "id-new", Slug: "initech", Status: tenant.StatusActive}
	d.handleNotification(ctx, NotifyChannel, "")

	if registry.listAllCalls != 2 {
		t.Errorf("expected full reload, got %d ListAll calls", registry.listAllCalls)
	}
	stats := d.GetStats()
	if stats.TenantsCached != 3 {
		t.Errorf("expected 3 cached tenants, got %d", stats.TenantsCached)
	}
}

func TestDirectoryCreate_AddsToCache(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	nt := &tenant.Tenant{Slug: "initech", SchemaName: "tenant_initech", Status: tenant.StatusActive}
	if err := d.Create(ctx, nt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nt.ID == "" {
		t.Fatal("expected generated id")
	}

	if _, err := d.GetBySlug(ctx, "initech"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.getBySlugCalls != 0 {
		t.Errorf("expected created tenant in cache, got %d registry calls", registry.getBySlugCalls)
	}
}

func TestDirectoryUpdateStatus_RefreshesEntry(t *testing.T) {
	registry := seedRegistry()
	d := NewTenantDirectory(nil, registry)
	ctx := context.Background()

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.UpdateStatusByID(ctx, "id-gco", tenant.StatusActive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := d.GetByID(ctx, "id-gco")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsActive() {
		t.Errorf("expected active after update, got %s", got.Status)
	}
}

func TestDirectoryUpdateStatus_NotFound(t *testing.T) {
	d := NewTenantDirectory(nil, seedRegistry())

	err := d.UpdateStatusByID(context.Background(), "missing", tenant.StatusSuspended)
	if !errors.Is(err, tenant.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestDirectoryOnInvalidation(t *testing.T) {
	d := NewTenantDirectory(nil, seedRegistry())
	ctx := context.Background()

	var gotChannel, gotPayload string
	d.OnInvalidation(func(channel, payload string) {
		panic("listener failure")
	})
	d.OnInvalidation(func(channel, payload string) {
		gotChannel = channel
		gotPayload = payload
	})

	// Panicking listener must not prevent delivery to the next one.
	d.handleNotification(ctx, NotifyChannel, "id-acme")

	if gotChannel != NotifyChannel || gotPayload != "id-acme" {
		t.Errorf("listener not invoked: channel=%q payload=%q", gotChannel, gotPayload)
	}
}
