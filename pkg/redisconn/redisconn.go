package redisconn

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderfeed/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrAddrRequired = errors.New("redis_addr_required")

var Module = fx.Module("redis",
	fx.Provide(New),
)

// New returns nil when Redis is disabled. Callers treat a nil client as
// "no Redis" and fall back to local behavior.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	opts, err := Options(cfg.Redis)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	log = log.Named("redis")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", opts.Addr), zap.Error(err))
				return nil
			}
			log.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func Options(cfg config.RedisConfig) (*redis.Options, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, ErrAddrRequired
	}
	return &redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Password),
		DB:       cfg.DB,
	}, nil
}
