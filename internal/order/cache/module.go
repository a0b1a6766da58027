package cache

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/config"
	"github.com/smallbiznis/orderfeed/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("order.cache",
	fx.Provide(NewKV),
	fx.Provide(NewFacade),
)

type KVParams struct {
	fx.In

	Cfg   config.Config
	DB    *gorm.DB
	Clock clock.Clock
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// NewKV picks the backend named by CACHE_BACKEND. A redis backend without
// a Redis client degrades to the SQL table.
func NewKV(p KVParams) KV {
	switch p.Cfg.Cache.Backend {
	case config.CacheBackendRedis:
		if p.Redis != nil {
			return NewRedisKV(p.Redis)
		}
		p.Log.Warn("redis cache backend requested without redis, using sql")
		return NewSQLKV(p.DB, p.Clock)
	case config.CacheBackendMemory:
		return NewMemoryKV(p.Clock)
	default:
		return NewSQLKV(p.DB, p.Clock)
	}
}

type FacadeParams struct {
	fx.In

	KV      KV
	Cfg     config.Config
	Orders  *config.OrdersConfigHolder
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *telemetry.Metrics
}

func NewFacade(p FacadeParams) *Facade {
	cfg := Config{
		TTL:    p.Orders.Get().CacheTTL,
		Prefix: p.Cfg.Cache.Prefix,
	}
	return New(p.KV, cfg, p.Clock, p.Log).
		WithObserver(p.Metrics).
		WithTTLSource(func() time.Duration { return p.Orders.Get().CacheTTL })
}
