// Package dependencies builds the process-wide infrastructure the daemon shares
// between collections: logger, change feed, database and collection factory.
package dependencies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/looplj/dochooks/conf"
	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/docstore/mongostore"
	"github.com/looplj/dochooks/internal/docstore/sqlitestore"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/pkg/watcher"
	"github.com/looplj/dochooks/internal/pkg/xredis"
)

const connectTimeout = 10 * time.Second

// NewRedisClient dials Redis only when the change feed is Redis backed; otherwise
// it returns nil.
func NewRedisClient(cfg watcher.Config) (*redis.Client, error) {
	if cfg.Mode != watcher.ModeRedis {
		return nil, nil
	}

	if !cfg.Redis.Enabled() {
		return nil, errors.New("watcher: redis mode requires watcher.redis.addr or watcher.redis.url")
	}

	return xredis.NewClient(cfg.Redis)
}

// NewChangeFeed is the feed memory and SQLite stores publish their writes on.
func NewChangeFeed(cfg watcher.Config, client *redis.Client) (watcher.Notifier[docstore.ChangeEvent], error) {
	return watcher.NewFromConfig[docstore.ChangeEvent](cfg, client)
}

func NewDatabase(cfg conf.StoreConfig, feed watcher.Notifier[docstore.ChangeEvent]) (docstore.Database, error) {
	switch cfg.Type {
	case conf.StoreMemory, "":
		return docstore.NewMemoryDatabase(feed), nil
	case conf.StoreSQLite:
		db, err := sqlitestore.Open(cfg.SQLite, feed)
		if err != nil {
			return nil, err
		}

		return db, nil
	case conf.StoreMongo:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		db, err := mongostore.Open(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}

		log.Info(ctx, "connected to mongo", log.String("database", cfg.Mongo.Database))

		return db, nil
	default:
		return nil, fmt.Errorf("store: unknown type %q", cfg.Type)
	}
}

func NewFactory(db docstore.Database, registry *collection.Registry, cfg collection.Config) (*collection.Factory, error) {
	opts, err := collection.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return collection.NewFactory(db, registry, opts), nil
}
