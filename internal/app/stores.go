package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/example/transit-fraud/internal/cardlock"
	"github.com/example/transit-fraud/internal/config"
	"github.com/example/transit-fraud/internal/detector"
	"github.com/example/transit-fraud/internal/identity"
	"github.com/example/transit-fraud/internal/loader"
	"github.com/example/transit-fraud/internal/logging"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/routes"
	"github.com/example/transit-fraud/internal/storage"
)

// Stores bundles the ledger, relationship graph and card lock every binary
// runs on. Postgres and redis are used when configured, the in-memory
// implementations otherwise.
type Stores struct {
	Ledger storage.Ledger
	Graph  identity.Graph
	Locks  cardlock.Locker

	memory      *storage.MemoryStore
	memoryGraph *identity.MemoryGraph
	postgres    *storage.PostgresStore
	pool        *pgxpool.Pool
	redis       *redis.Client
}

func OpenStores(ctx context.Context, cfg config.Stores, logger *slog.Logger) (*Stores, error) {
	logger = logging.Component(logger, "stores")
	s := &Stores{}

	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w: %w", models.ErrDependency, err)
		}
		s.postgres, s.Ledger = pg, pg

		pool, err := pgxpool.New(ctx, cfg.GraphDSN)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open graph pool: %w: %w", models.ErrDependency, err)
		}
		s.pool = pool
		s.Graph = identity.NewPostgresGraph(pool)
		logger.Info("using postgres stores")
	} else {
		s.memory = storage.NewMemoryStore()
		s.memoryGraph = identity.NewMemoryGraph(s.memory)
		s.Ledger, s.Graph = s.memory, s.memoryGraph
		logger.Info("using in-memory stores")
	}

	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis ping: %w: %w", models.ErrDependency, err)
		}
		s.Locks = cardlock.NewRedis(s.redis, cfg.LockPrefix, cfg.LockTTL)
	} else {
		s.Locks = cardlock.NewLocal()
	}

	if cfg.SeedDir != "" {
		if s.memory == nil {
			logger.Warn("SEED_DIR ignored with postgres stores; use fraudctl load", "dir", cfg.SeedDir)
		} else {
			report, err := loader.New(s.Sink(), logger).Load(ctx, cfg.SeedDir)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("seed %s: %w", cfg.SeedDir, err)
			}
			logger.Info("in-memory stores seeded", "dir", cfg.SeedDir, "rides", report[loader.Rides])
		}
	}
	return s, nil
}

// Sink is where bulk loads go for the configured stores.
func (s *Stores) Sink() loader.Sink {
	if s.pool != nil {
		return loader.NewPgxSink(s.pool)
	}
	return loader.NewMemorySink(s.memory, s.memoryGraph)
}

func (s *Stores) Migrate(ctx context.Context, dir string) ([]string, error) {
	if s.postgres == nil {
		return nil, fmt.Errorf("%w: migrations need PG_DSN", models.ErrConfig)
	}
	return s.postgres.ApplyMigrations(ctx, dir)
}

func (s *Stores) Linker(logger *slog.Logger) *identity.Linker {
	return identity.NewLinker(s.Graph, logger)
}

// Detector builds the clone detector over these stores with a fresh table.
func (s *Stores) Detector(notifiers map[string]detector.Notifier, logger *slog.Logger) *detector.Service {
	return &detector.Service{
		Table:     routes.NewTable(),
		Ledger:    s.Ledger,
		Locks:     s.Locks,
		Linker:    s.Linker(logger),
		Notifiers: notifiers,
		Logger:    logging.Component(logger, "detector"),
	}
}

func (s *Stores) Close() error {
	var errs []error
	if s.Ledger != nil {
		errs = append(errs, s.Ledger.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}
