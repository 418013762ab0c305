package postgres

import (
	"context"
	"errors"
	"testing"

	"pgsession/internal/core/tenant"
)

func TestWithFactory_ClosesOnSuccess(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := DefaultConfig("host=x dbname=y user=u password=p")
	cfg.Dial = dialer.dial

	err := WithFactory(context.Background(), cfg, nil, func(ctx context.Context, f *Factory) error {
		_, err := f.Open(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("WithFactory failed: %v", err)
	}

	if dialer.conns[0].closes != 1 {
		t.Errorf("expected connection closed on exit, got %d closes", dialer.conns[0].closes)
	}
}

func TestWithFactory_ClosesOnError(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := DefaultConfig("host=x dbname=y user=u password=p")
	cfg.Dial = dialer.dial

	fnErr := errors.New("work failed")
	err := WithFactory(context.Background(), cfg, nil, func(ctx context.Context, f *Factory) error {
		if _, oerr := f.Open(ctx); oerr != nil {
			return oerr
		}
		return fnErr
	})
	if !errors.Is(err, fnErr) {
		t.Fatalf("expected fn error back, got %v", err)
	}

	if dialer.conns[0].closes != 1 {
		t.Errorf("expected connection closed on error exit, got %d closes", dialer.conns[0].closes)
	}
}

func TestWithFactory_RollsBackAbandonedTx(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := DefaultConfig("host=x dbname=y user=u password=p")
	cfg.Dial = dialer.dial

	err := WithFactory(context.Background(), cfg, nil, func(ctx context.Context, f *Factory) error {
		return f.Begin(ctx, DefaultTxOptions())
	})
	if err != nil {
		t.Fatalf("WithFactory failed: %v", err)
	}

	if got := dialer.conns[0].tx.rollbacks; got != 1 {
		t.Errorf("expected abandoned transaction rolled back, got %d", got)
	}
}

func TestWithFactory_ReportsTeardownFailure(t *testing.T) {
	rbErr := errors.New("rollback boom")
	dialer := &fakeDialer{prepare: func(c *fakeConn) {
		c.nextTx = &fakeTx{rollbackErr: rbErr}
	}}
	cfg := DefaultConfig("host=x dbname=y user=u password=p")
	cfg.Dial = dialer.dial

	err := WithFactory(context.Background(), cfg, nil, func(ctx context.Context, f *Factory) error {
		return f.Begin(ctx, DefaultTxOptions())
	})
	if !errors.Is(err, rbErr) {
		t.Errorf("expected teardown failure surfaced, got %v", err)
	}
}

func TestWithFactory_ConstructionError(t *testing.T) {
	called := false
	err := WithFactory(context.Background(), DefaultConfig("definitely-not-a-dsn"), nil, func(ctx context.Context, f *Factory) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrInvalidConnString) {
		t.Errorf("expected ErrInvalidConnString, got %v", err)
	}
	if called {
		t.Error("fn must not run when construction fails")
	}
}

func TestWithTenantFactory(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := Config{Dial: dialer.dial}
	provider := tenant.Static("host=x dbname=y user=u password=p")

	err := WithTenantFactory(context.Background(), provider, cfg, nil, func(ctx context.Context, f *Factory) error {
		return f.Ping(ctx)
	})
	if err != nil {
		t.Fatalf("WithTenantFactory failed: %v", err)
	}

	if dialer.conns[0].closes != 1 {
		t.Errorf("expected connection closed on exit, got %d closes", dialer.conns[0].closes)
	}
}

func TestWithTenantFactory_ProviderError(t *testing.T) {
	provErr := errors.New("tenant registry unavailable")

	called := false
	err := WithTenantFactory(context.Background(), failingProvider{err: provErr}, Config{}, nil, func(ctx context.Context, f *Factory) error {
		called = true
		return nil
	})
	if !errors.Is(err, provErr) {
		t.Errorf("expected provider error, got %v", err)
	}
	if called {
		t.Error("fn must not run when the provider fails")
	}
}
