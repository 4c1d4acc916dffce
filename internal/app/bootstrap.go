package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/trialbalance/internal/accounting/books"
	"github.com/odyssey-erp/trialbalance/internal/events"
	"github.com/odyssey-erp/trialbalance/internal/platform/cache"
	"github.com/odyssey-erp/trialbalance/internal/platform/db"
	"github.com/odyssey-erp/trialbalance/internal/platform/kv"
)

// Resources holds the connections a process opened from Config.
type Resources struct {
	Store     kv.Store
	Redis     *redis.Client
	Publisher events.Publisher

	closers []func() error
	logger  *slog.Logger
}

// Open connects the configured store, Redis and event publisher. Redis is
// optional unless it backs the store.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{Publisher: events.NopPublisher{}, logger: logger}

	client, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	switch {
	case err == nil:
		res.Redis = client
		res.closers = append(res.closers, client.Close)
	case cfg.StoreDriver == StoreRedis:
		return nil, err
	default:
		logger.Warn("redis unavailable, view cache and jobs disabled", slog.Any("error", err))
	}

	switch cfg.StoreDriver {
	case StoreMemory:
		res.Store = kv.NewMemoryStore()
	case StoreRedis:
		res.Store = kv.NewRedisStore(res.Redis, cfg.RedisPrefix)
	case StorePostgres:
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			res.Close()
			return nil, err
		}
		pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
		if err != nil {
			res.Close()
			return nil, err
		}
		res.closers = append(res.closers, func() error { pool.Close(); return nil })
		res.Store = kv.NewPostgresStore(pool)
	default:
		res.Close()
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	if cfg.EventsEnabled() {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		res.Publisher = publisher
		res.closers = append(res.closers, publisher.Close)
	}
	logger.Info("resources opened",
		slog.String("store", cfg.StoreDriver),
		slog.Bool("redis", res.Redis != nil),
		slog.Bool("events", cfg.EventsEnabled()))
	return res, nil
}

// BooksService builds the books service over the opened resources.
func (r *Resources) BooksService(cfg *Config, logger *slog.Logger) *books.Service {
	var viewCache *books.ViewCache
	if r.Redis != nil {
		viewCache = books.NewViewCache(r.Redis, viewNamespace(cfg), cfg.ViewCacheTTL)
	}
	repo := books.NewRepository(r.Store, logger)
	return books.NewService(repo, viewCache, r.Publisher, logger)
}

// viewNamespace scopes cached views to the backing store. A memory store is
// private to its process, so each process gets its own namespace.
func viewNamespace(cfg *Config) string {
	ns := cfg.RedisPrefix + cfg.StoreDriver + ":"
	if cfg.StoreDriver == StoreMemory {
		ns += uuid.NewString() + ":"
	}
	return ns
}

// Close releases resources in reverse order of opening.
func (r *Resources) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && r.logger != nil {
			r.logger.Warn("close resource", slog.Any("error", err))
		}
	}
	r.closers = nil
}
