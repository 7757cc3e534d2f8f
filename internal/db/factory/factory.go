// Package factory builds the configured execution engine and its decorators.
package factory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/config"
	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/db/local"
	"github.com/kailas-cloud/docstore/internal/db/mongo"
	dbRedis "github.com/kailas-cloud/docstore/internal/db/redis"
	"github.com/kailas-cloud/docstore/internal/metrics"
	"github.com/kailas-cloud/docstore/internal/repository/querycache"
	datastoreuc "github.com/kailas-cloud/docstore/internal/usecase/datastore"
)

// Datastore is the assembled store plus the handles main needs for health and shutdown.
type Datastore struct {
	Store  db.Store
	Driver string

	cache      db.KVStore
	closeCache func()
}

// CachePinger returns the cache backend, or a nil interface when caching is disabled.
func (d *Datastore) CachePinger() db.Pinger {
	if d.cache == nil {
		return nil
	}
	return d.cache
}

// Close closes the store and then the cache client.
func (d *Datastore) Close(ctx context.Context) error {
	err := d.Store.Close(ctx)
	if d.closeCache != nil {
		d.closeCache()
	}
	if err != nil {
		return fmt.Errorf("close datastore: %w", err)
	}
	return nil
}

// New opens the engine selected by cfg.Datastore.Driver and wraps it:
// engine -> query cache (optional) -> instrumented.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Datastore, error) {
	engine, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		cache      db.KVStore
		closeCache func()
	)
	if cfg.Cache.Enabled {
		rs, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			_ = engine.Close(ctx)
			return nil, fmt.Errorf("create cache client: %w", err)
		}
		timeout := time.Duration(cfg.Cache.ReadinessTimeoutSec) * time.Second
		if err := rs.WaitForReady(ctx, timeout); err != nil {
			rs.Close()
			_ = engine.Close(ctx)
			return nil, fmt.Errorf("cache not ready: %w", err)
		}
		cache, closeCache = rs, rs.Close
		logger.Info("Query cache enabled",
			zap.Strings("addrs", cfg.Cache.Addrs),
			zap.Int("ttl_sec", cfg.Cache.TTLSec),
		)
	}

	ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
	return &Datastore{
		Store:      Wrap(engine, cfg.Datastore.Driver, cache, ttl, logger),
		Driver:     cfg.Datastore.Driver,
		cache:      cache,
		closeCache: closeCache,
	}, nil
}

// Wrap applies the decorator chain to an engine. cache may be nil.
func Wrap(engine db.Store, driver string, cache db.KVStore, ttl time.Duration, logger *zap.Logger) db.Store {
	store := engine
	if cache != nil {
		store = querycache.New(store, cache, ttl, metrics.QueryCacheTotal, logger)
	}
	return datastoreuc.NewInstrumentedStore(store, driver, logger)
}

func openEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (db.Store, error) {
	switch cfg.Datastore.Driver {
	case config.DriverLocal:
		s, err := local.Open(local.Config{
			DataDir:         cfg.Datastore.DataDir,
			DefaultPageSize: cfg.Datastore.DefaultPageSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open local datastore: %w", err)
		}
		return s, nil
	case config.DriverMongo:
		s, err := mongo.New(ctx, mongo.Config{
			URI:             cfg.Mongo.URI,
			Database:        cfg.Mongo.Database,
			CertFile:        cfg.Mongo.CertFile,
			DefaultPageSize: cfg.Datastore.DefaultPageSize,
			ConnectTimeout:  time.Duration(cfg.Mongo.ConnectTimeoutSec) * time.Second,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open mongo datastore: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown datastore driver %q", cfg.Datastore.Driver)
	}
}
