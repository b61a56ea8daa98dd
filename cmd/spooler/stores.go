package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/bodystore"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/config"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/environment"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/mongostore"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/pgstore"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/redisstore"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

// store is an opened queue backend. purge is set for backends that keep
// completed entries around; healthcheck for backends behind a connection.
type store struct {
	repo        queue.Repository
	purge       func(ctx context.Context, before time.Time) (int64, error)
	healthcheck func(ctx context.Context) error
	close       func()
}

func openStore(ctx context.Context, kind string, env environment.Environment, log *slog.Logger) (*store, error) {
	switch kind {
	case "", "memory":
		if env != environment.Development {
			return nil, fmt.Errorf("SPOOL_STORE memory loses entries on restart and is refused in %s", env)
		}
		log.WarnContext(ctx, "using in-memory queue store; entries are lost on restart")
		ms := queue.NewMemoryStorage()
		return &store{repo: ms, purge: ms.PurgeCompleted, close: func() {}}, nil

	case "redis":
		var cfg redisstore.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redisstore.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &store{
			repo:        redisstore.New(client, redisstore.WithKeyPrefix(cfg.KeyPrefix)),
			healthcheck: redisstore.Healthcheck(client),
			close:       func() {
				if err := client.Close(); err != nil {
					log.Warn("failed to close redis client", logger.Error(err))
				}
			},
		}, nil

	case "postgres":
		var cfg pgstore.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pgstore.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		pg := pgstore.New(pool)
		return &store{
			repo:        pg,
			purge:       pg.PurgeCompleted,
			healthcheck: pgstore.Healthcheck(pool),
			close:       pool.Close,
		}, nil

	case "mongo":
		var cfg mongostore.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := mongostore.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		ms := mongostore.New(client.Database(cfg.Database), cfg.CollectionPrefix)
		closeClient := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Warn("failed to disconnect mongo client", logger.Error(err))
			}
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			closeClient()
			return nil, err
		}
		return &store{repo: ms, healthcheck: mongostore.Healthcheck(client), close: closeClient}, nil

	default:
		return nil, fmt.Errorf("unknown SPOOL_STORE %q: want memory, redis, postgres or mongo", kind)
	}
}

// openBodyStore returns nil for inline bodies.
func openBodyStore(ctx context.Context, kind string) (spool.BodyStore, error) {
	switch kind {
	case "", "inline":
		return nil, nil
	case "s3":
		var cfg bodystore.S3Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		s3, err := bodystore.NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown SPOOL_BODY_STORE %q: want inline or s3", kind)
	}
}
