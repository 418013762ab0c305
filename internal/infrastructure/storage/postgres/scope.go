package postgres

import (
	"context"

	"pgsession/internal/core/tenant"
	"pgsession/pkg/logger"
)

// WithFactory creates a factory, runs fn with it, and closes it on every
// exit path: normal return, early return, or error. Use it instead of
// managing Close by hand when the factory serves one unit of work. A Close
// failure is reported only when fn itself succeeded.
func WithFactory(ctx context.Context, cfg Config, log *logger.Logger, fn func(ctx context.Context, f *Factory) error) (err error) {
	f, err := New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, f)
}

// WithTenantFactory is WithFactory with the connection string resolved
// through a tenant provider.
func WithTenantFactory(ctx context.Context, provider tenant.ConnStringProvider, cfg Config, log *logger.Logger, fn func(ctx context.Context, f *Factory) error) (err error) {
	f, err := NewFromProvider(ctx, provider, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, f)
}
