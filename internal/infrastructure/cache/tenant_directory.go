// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pgsession/internal/core/tenant"
	"pgsession/pkg/logger"
)

// NotifyChannel is the meta-database channel carrying tenant change events.
// Payload is the tenant id, or empty for a full reload.
const NotifyChannel = "tenants_changed"

// TenantDirectory is an in-memory read-through cache over a tenant registry
// with automatic invalidation via PostgreSQL LISTEN/NOTIFY. It eliminates
// per-request meta-database lookups in long-running embedders.
type TenantDirectory struct {
	pool     *pgxpool.Pool
	registry tenant.Registry

	mu     sync.RWMutex
	byID   map[string]*tenant.Tenant
	bySlug map[string]*tenant.Tenant
	loaded bool

	// Listeners for cache invalidation
	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// InvalidationListener is called when a tenant change notification arrives.
type InvalidationListener func(channel string, payload string)

// NewTenantDirectory creates a directory over the given registry.
// The pool must point at the meta-database carrying the tenants table.
func NewTenantDirectory(pool *pgxpool.Pool, registry tenant.Registry) *TenantDirectory {
	return &TenantDirectory{
		pool:     pool,
		registry: registry,
		byID:     make(map[string]*tenant.Tenant),
		bySlug:   make(map[string]*tenant.Tenant),
	}
}

// Start loads the directory and begins listening for NOTIFY events.
func (d *TenantDirectory) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	d.lifecycleMu.Lock()
	if d.started {
		d.lifecycleMu.Unlock()
		return nil
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.started = true
	d.lifecycleMu.Unlock()

	if err := d.Refresh(d.ctx); err != nil {
		d.Stop()
		return err
	}

	d.wg.Add(1)
	go d.listenLoop()
	logger.Info(d.ctx, "tenant directory started")
	return nil
}

// Stop gracefully stops the directory listener.
func (d *TenantDirectory) Stop() {
	d.lifecycleMu.Lock()
	if !d.started {
		d.lifecycleMu.Unlock()
		return
	}
	cancel := d.cancel
	d.started = false
	d.cancel = nil
	d.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	logger.Info(context.Background(), "tenant directory stopped")
}

// Refresh reloads all tenants from the underlying registry.
func (d *TenantDirectory) Refresh(ctx context.Context) error {
	tenants, err := d.registry.ListAll(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*tenant.Tenant, len(tenants))
	bySlug := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
		bySlug[t.Slug] = t
	}

	d.mu.Lock()
	d.byID = byID
	d.bySlug = bySlug
	d.loaded = true
	d.mu.Unlock()

	logger.Info(ctx, "tenant directory loaded", "tenants", len(tenants))
	return nil
}

// listenLoop listens for PostgreSQL NOTIFY events.
func (d *TenantDirectory) listenLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		// Acquire dedicated connection for LISTEN
		conn, err := d.pool.Acquire(d.ctx)
		if err != nil {
			logger.Error(d.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		_, err = conn.Exec(d.ctx, "LISTEN "+NotifyChannel)
		if err != nil {
			logger.Error(d.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		logger.Info(d.ctx, "listening for tenant change notifications", "channel", NotifyChannel)

		d.waitForNotifications(conn)
		conn.Release()
	}
}

// waitForNotifications blocks waiting for NOTIFY events.
func (d *TenantDirectory) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		// Wait for notification with timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if d.ctx.Err() != nil {
				return // Shutting down
			}
			// Timeout is expected, continue listening
			continue
		}

		logger.Debug(d.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)

		d.handleNotification(d.ctx, notification.Channel, notification.Payload)
	}
}

// handleNotification processes a NOTIFY event.
func (d *TenantDirectory) handleNotification(ctx context.Context, channel, payload string) {
	if channel == NotifyChannel {
		d.invalidateTenant(ctx, payload)
	}

	// Listeners run inline with panic recovery, no goroutine fan-out.
	d.listenersMu.RLock()
	for _, listener := range d.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "listener panic recovered", "channel", channel, "panic", r)
				}
			}()
			l(channel, payload)
		}(listener)
	}
	d.listenersMu.RUnlock()
}

// invalidateTenant reloads a single tenant, or everything on an empty payload.
func (d *TenantDirectory) invalidateTenant(ctx context.Context, payload string) {
	tenantID := strings.TrimSpace(payload)
	if tenantID == "" {
		if err := d.Refresh(ctx); err != nil {
			logger.Error(ctx, "failed to reload tenant directory", "error", err)
		}
		return
	}

	t, err := d.registry.GetByID(ctx, tenantID)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		d.remove(tenantID)
		return
	}
	if err != nil {
		logger.Error(ctx, "failed to reload tenant", "tenant_id", tenantID, "error", err)
		return
	}
	d.store(t)
}

func (d *TenantDirectory) store(t *tenant.Tenant) {
	d.mu.Lock()
	if prev, ok := d.byID[t.ID]; ok && prev.Slug != t.Slug {
		delete(d.bySlug, prev.Slug)
	}
	d.byID[t.ID] = t
	d.bySlug[t.Slug] = t
	d.mu.Unlock()
}

func (d *TenantDirectory) remove(tenantID string) {
	d.mu.Lock()
	if t, ok := d.byID[tenantID]; ok {
		delete(d.bySlug, t.Slug)
		delete(d.byID, tenantID)
	}
	d.mu.Unlock()
}

// GetByID returns the cached tenant, falling back to the registry on a miss.
func (d *TenantDirectory) GetByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	d.mu.RLock()
	t, ok := d.byID[tenantID]
	d.mu.RUnlock()
	if ok {
		return copyTenant(t), nil
	}

	t, err := d.registry.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	d.store(t)
	return copyTenant(t), nil
}

// GetBySlug returns the cached tenant, falling back to the registry on a miss.
func (d *TenantDirectory) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	d.mu.RLock()
	t, ok := d.bySlug[slug]
	d.mu.RUnlock()
	if ok {
		return copyTenant(t), nil
	}

	t, err := d.registry.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	d.store(t)
	return copyTenant(t), nil
}

// ListActive returns active tenants from the cache once loaded.
func (d *TenantDirectory) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	d.mu.RLock()
	if !d.loaded {
		d.mu.RUnlock()
		return d.registry.ListActive(ctx)
	}
	tenants := make([]*tenant.Tenant, 0, len(d.byID))
	for _, t := range d.byID {
		if t.IsActive() {
			tenants = append(tenants, copyTenant(t))
		}
	}
	d.mu.RUnlock()

	sortTenants(tenants)
	return tenants, nil
}

// ListAll returns all tenants from the cache once loaded.
func (d *TenantDirectory) ListAll(ctx context.Context) ([]*tenant.Tenant, error) {
	d.mu.RLock()
	if !d.loaded {
		d.mu.RUnlock()
		return d.registry.ListAll(ctx)
	}
	tenants := make([]*tenant.Tenant, 0, len(d.byID))
	for _, t := range d.byID {
		tenants = append(tenants, copyTenant(t))
	}
	d.mu.RUnlock()

	sortTenants(tenants)
	return tenants, nil
}

// Create delegates to the registry and caches the new tenant.
func (d *TenantDirectory) Create(ctx context.Context, t *tenant.Tenant) error {
	if err := d.registry.Create(ctx, t); err != nil {
		return err
	}
	d.store(copyTenant(t))
	return nil
}

// UpdateStatusByID delegates to the registry and refetches the changed tenant.
func (d *TenantDirectory) UpdateStatusByID(ctx context.Context, tenantID string, status tenant.Status) error {
	if err := d.registry.UpdateStatusByID(ctx, tenantID, status); err != nil {
		return err
	}

	t, err := d.registry.GetByID(ctx, tenantID)
	if err != nil {
		d.remove(tenantID)
		return nil
	}
	d.store(t)
	return nil
}

// OnInvalidation registers a callback for tenant change notifications.
func (d *TenantDirectory) OnInvalidation(listener InvalidationListener) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, listener)
	d.listenersMu.Unlock()
}

// DirectoryStats holds directory cache statistics.
type DirectoryStats struct {
	TenantsCached int
	ActiveCount   int
}

// GetStats returns current cache statistics.
func (d *TenantDirectory) GetStats() DirectoryStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	active := 0
	for _, t := range d.byID {
		if t.IsActive() {
			active++
		}
	}
	return DirectoryStats{
		TenantsCached: len(d.byID),
		ActiveCount:   active,
	}
}

// copyTenant guards cache entries against caller mutation.
func copyTenant(t *tenant.Tenant) *tenant.Tenant {
	c := *t
	return &c
}

func sortTenants(tenants []*tenant.Tenant) {
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Slug < tenants[j].Slug })
}

var _ tenant.Registry = (*TenantDirectory)(nil)
