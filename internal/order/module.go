// Package order wires the order engine: one merger shared by the session
// root watcher and the view service, driven by the signed-in identity.
package order

import (
	"context"
	"time"

	"github.com/smallbiznis/orderfeed/internal/config"
	"github.com/smallbiznis/orderfeed/internal/docstore"
	"github.com/smallbiznis/orderfeed/internal/order/aggregate"
	"github.com/smallbiznis/orderfeed/internal/order/cache"
	"github.com/smallbiznis/orderfeed/internal/order/service"
	"github.com/smallbiznis/orderfeed/internal/order/session"
	"github.com/smallbiznis/orderfeed/internal/order/timestamp"
	"github.com/smallbiznis/orderfeed/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("order",
	cache.Module,
	fx.Provide(
		NewNormalizer,
		NewMerger,
		NewIdentity,
		NewRootWatcher,
		NewManager,
		NewService,
	),
	fx.Invoke(registerLifecycle),
)

func NewNormalizer(cfg config.Config) (*timestamp.Normalizer, error) {
	if cfg.Timezone == "" {
		return timestamp.New(nil), nil
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return timestamp.New(loc), nil
}

func NewMerger(log *zap.Logger, metrics *telemetry.Metrics) *aggregate.Merger {
	return aggregate.New(log).WithObserver(metrics)
}

func NewIdentity(cfg config.Config) *session.Identity {
	return session.NewIdentity(cfg.OwnerID)
}

type RootParams struct {
	fx.In

	Store      *docstore.Store
	Merger     *aggregate.Merger
	Cache      *cache.Facade
	Normalizer *timestamp.Normalizer
	Orders     *config.OrdersConfigHolder
	Log        *zap.Logger
	Metrics    *telemetry.Metrics
}

func NewRootWatcher(p RootParams) *session.RootWatcher {
	return session.NewRootWatcher(session.Options{
		Store:      p.Store,
		Merger:     p.Merger,
		Cache:      p.Cache,
		Normalizer: p.Normalizer,
		BatchSize:  func() int { return p.Orders.Get().BatchSize },
		Log:        p.Log,
		Observer:   p.Metrics,
	})
}

func NewManager(identity *session.Identity, root *session.RootWatcher, log *zap.Logger, metrics *telemetry.Metrics) *session.Manager {
	return session.NewManager(identity, root, log).WithObserver(metrics)
}

func NewService(merger *aggregate.Merger, orders *config.OrdersConfigHolder, log *zap.Logger) *service.Service {
	return service.New(merger, func() time.Duration { return orders.Get().SearchDebounce }, log)
}

// registerLifecycle starts the view service before the session manager so
// the first published snapshot is not missed.
func registerLifecycle(lc fx.Lifecycle, svc *service.Service, manager *session.Manager, log *zap.Logger) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			svc.Start(ctx)
			manager.Start(ctx)
			log.Named("order").Info("order engine started")
			return nil
		},
		OnStop: func(context.Context) error {
			manager.Stop()
			svc.Stop()
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
