package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/slotbook/internal/config"
	"github.com/jwalitptl/slotbook/internal/repository"
	"github.com/jwalitptl/slotbook/internal/repository/memory"
	"github.com/jwalitptl/slotbook/internal/repository/mongo"
	"github.com/jwalitptl/slotbook/internal/repository/postgres"
)

// store is whichever persistence backend the config selects.
type store struct {
	services repository.ServiceRepository
	bookings repository.BookingRepository
	pinger   repository.Pinger
	close    func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		client, err := mongo.New(ctx, cfg.ToMongoConfig())
		if err != nil {
			return nil, err
		}
		if err := client.EnsureIndexes(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("failed to ensure mongo indexes: %w", err)
		}
		logger.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
		return &store{
			services: client.Services(),
			bookings: client.Bookings(),
			pinger:   client,
			close:    client.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.ToPostgresConfig())
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		s := postgres.NewStore(db)
		logger.Info().Str("host", cfg.Postgres.Host).Str("database", cfg.Postgres.Name).Msg("connected to postgres")
		return &store{
			services: s.Services(),
			bookings: s.Bookings(),
			pinger:   s,
			close:    func(context.Context) error { return s.Close() },
		}, nil

	case config.DriverMemory:
		s := memory.NewStore()
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return &store{
			services: s.Services(),
			bookings: s.Bookings(),
			pinger:   s,
			close:    func(context.Context) error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
