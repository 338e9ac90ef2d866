package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/authcore/internal/database/migrations"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"golang.org/x/sync/singleflight"
)

// defaultBootstrapTimeout bounds a single migration run
const defaultBootstrapTimeout = 60 * time.Second

// Bootstrapper makes sure the security core tables exist. The first caller
// applies the embedded migrations; concurrent callers wait for that same
// run, and once it succeeds every later call returns without touching the
// store. A failed run is reported to all waiters and retried on the next call.
// The run is detached from the caller that started it, so one caller giving up
// does not fail the others.
type Bootstrapper struct {
	migrate func(ctx context.Context) error
	logger  *slog.Logger
	timeout time.Duration
	group   singleflight.Group
	ready   atomic.Bool
}

// NewBootstrapper creates a Bootstrapper that migrates db with the embedded schema
func NewBootstrapper(db *DB, logger *slog.Logger) *Bootstrapper {
	b := &Bootstrapper{logger: logger, timeout: defaultBootstrapTimeout}
	b.migrate = func(ctx context.Context) error {
		return runMigrations(ctx, db, migrations.FS, logger)
	}
	return b
}

// Ensure creates the backing tables if they are missing
func (b *Bootstrapper) Ensure(ctx context.Context) error {
	if b.ready.Load() {
		return nil
	}

	ch := b.group.DoChan("ensure", func() (interface{}, error) {
		if b.ready.Load() {
			return nil, nil
		}

		timeout := b.timeout
		if timeout <= 0 {
			timeout = defaultBootstrapTimeout
		}
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := b.migrate(runCtx); err != nil {
			return nil, err
		}
		b.ready.Store(true)
		return nil, nil
	})

	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: bootstrap: %v", models.ErrStoreUnavailable, ctx.Err())
	}
	if err != nil {
		b.logger.Error("security store bootstrap failed", slog.Any("error", err))
		return fmt.Errorf("%w: bootstrap: %v", models.ErrStoreUnavailable, err)
	}

	return nil
}

// Ready reports whether a bootstrap has completed in this process
func (b *Bootstrapper) Ready() bool {
	return b.ready.Load()
}

// runMigrations applies all pending migrations under a Postgres advisory
// lock so that several processes starting at once do not race each other.
func runMigrations(ctx context.Context, db *DB, fsys fs.FS, logger *slog.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return fmt.Errorf("failed to create migration locker: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("migration applied",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}

	return nil
}
