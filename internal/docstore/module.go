package docstore

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderfeed/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("docstore",
	fx.Provide(NewHub),
	fx.Provide(NewRepository),
	fx.Provide(provideBus),
	fx.Provide(New),
)

type busParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Hub       *Hub
	Log       *zap.Logger
	Redis     *goredis.Client `optional:"true"`
}

// provideBus returns nil when Redis is off; the store then only notifies
// watchers in this process.
func provideBus(p busParams) (*RedisBus, error) {
	if p.Redis == nil {
		return nil, nil
	}
	bus, err := NewRedisBus(p.Redis, p.Hub, p.Cfg.Redis.BusChannel, p.Log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := bus.Ping(startCtx); err != nil {
				bus.log.Warn("change bus unavailable, remote changes will be missed", zap.Error(err))
				return nil
			}
			return bus.StartForwarder(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return bus, nil
}
