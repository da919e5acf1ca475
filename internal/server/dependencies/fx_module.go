package dependencies

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/contexts"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/log"
)

var Module = fx.Module("dependencies",
	fx.Provide(log.New),
	fx.Provide(NewRedisClient),
	fx.Provide(NewChangeFeed),
	fx.Provide(NewDatabase),
	fx.Provide(collection.NewRegistry),
	fx.Provide(NewFactory),
	fx.Invoke(func(logger *log.Logger) {
		log.SetGlobalLogger(logger)
		contexts.SetupLogger(logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, db docstore.Database, client *redis.Client, logger *log.Logger) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if err := db.Close(); err != nil {
					log.Error(ctx, "close database error", log.Cause(err))
				}

				if client != nil {
					if err := client.Close(); err != nil {
						log.Error(ctx, "close redis error", log.Cause(err))
					}
				}

				_ = logger.Sync()

				return nil
			},
		})
	}),
)
