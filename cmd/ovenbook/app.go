package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ovenbook/internal/access"
	"ovenbook/internal/audit"
	"ovenbook/internal/booking"
	"ovenbook/internal/clock"
	"ovenbook/internal/config"
	"ovenbook/internal/db"
	"ovenbook/internal/directory"
	"ovenbook/internal/events"
	"ovenbook/internal/memstore"
	"ovenbook/internal/sweep"
)

// app is the wired object graph shared by all commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  clock.Clock

	store booking.Store
	sqlDB *db.DB // nil for the memory driver
	redis *redis.Client

	bus     *events.EventBus
	access  *access.Service
	engine  *booking.Service
	ovens   *directory.Directory
	sweeper *sweep.Runner
}

func rulesFromConfig(cfg *config.Config) booking.Rules {
	return booking.Rules{
		MaxActivePerUser: cfg.Booking.MaxActivePerUser,
		GraceWindow:      cfg.GraceWindow(),
		MaxDuration:      cfg.MaxDuration(),
		MinPurposeLength: cfg.Booking.MinPurposeLength,
		MaxFlap:          cfg.Booking.MaxFlap,
		CancelReason:     cfg.Booking.CancelReason,
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		clock:  clock.System(),
		bus:    events.NewEventBus(logger),
	}

	var users access.UserRepository
	switch cfg.Database.Driver {
	case "memory":
		mem := memstore.New()
		a.store, users = mem, mem
		logger.Warn().Msg("using in-memory store; data is lost on exit")
	default:
		database, err := db.Open(db.Options{
			Driver:       cfg.Database.Driver,
			Path:         cfg.Database.Path,
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		}, &logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.sqlDB = database
		a.store, users = database, database
	}

	if cfg.Redis.Address != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("redis unavailable, continuing without cache")
			_ = a.redis.Close()
			a.redis = nil
		}
	}

	a.access = access.NewService(users, a.clock, logger)
	if _, err := a.access.BootstrapAdmins(ctx, cfg.Admins); err != nil {
		a.close()
		return nil, err
	}

	a.engine = booking.NewService(a.store, a.access, a.clock, rulesFromConfig(cfg),
		booking.WithLogger(logger),
		booking.WithPublisher(a.bus),
	)

	a.ovens = directory.New(a.engine, logger)
	if a.redis != nil {
		a.ovens.UseRedisCache(a.redis, cfg.CacheTTL())
	}
	a.ovens.Subscribe(a.bus)

	a.sweeper = sweep.NewRunner(a.engine, a.clock, sweep.Config{
		MinGap:   cfg.SweepMinGap(),
		Interval: cfg.SweepInterval(),
	}, logger)
	if a.redis != nil {
		a.sweeper.UseRedisLock(a.redis)
	}

	return a, nil
}

// syncOvens applies ovens.yaml and drops cached entries for the touched ovens.
func (a *app) syncOvens(ctx context.Context, oc *config.OvensConfig) error {
	n, err := db.SyncOvensFromConfig(ctx, a.store, oc, a.clock.Now())
	if err != nil {
		return fmt.Errorf("sync ovens: %w", err)
	}
	for _, o := range oc.Ovens {
		a.ovens.Invalidate(ctx, o.ID)
	}
	a.logger.Info().Int("changed", n).Msg("ovens synced")
	return nil
}

// exporter returns nil for the memory driver, which has no tables.
func (a *app) exporter() *audit.Exporter {
	if a.sqlDB == nil {
		return nil
	}
	return audit.NewExporter(a.sqlDB, a.logger)
}

// adminActor resolves id and insists on the admin role.
func (a *app) adminActor(ctx context.Context, id string) (booking.Actor, error) {
	actor, err := a.access.ResolveActor(ctx, id)
	if err != nil {
		return booking.Actor{}, err
	}
	if !actor.IsAdmin() {
		return booking.Actor{}, errors.New("admin role required")
	}
	return actor, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
}
