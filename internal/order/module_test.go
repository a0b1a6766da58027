package order

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/config"
	"github.com/smallbiznis/orderfeed/internal/docstore"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/order/service"
	"github.com/smallbiznis/orderfeed/internal/order/session"
	"github.com/smallbiznis/orderfeed/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(docstore.Models()...))
	return db
}

func TestModule_SignedInOwnerSeesOrders(t *testing.T) {
	db := openDB(t)
	cfg := config.Config{
		OwnerID: "u1",
		Cache:   config.CacheConfig{Backend: config.CacheBackendMemory, Prefix: "test"},
	}
	ordersCfg := config.DefaultOrdersConfig()
	ordersCfg.SearchDebounce = 0

	var (
		store    *docstore.Store
		svc      *service.Service
		root     *session.RootWatcher
		identity *session.Identity
	)
	app := fxtest.New(t,
		fx.Supply(cfg, db),
		fx.Provide(
			zap.NewNop,
			clock.System,
			func() *config.OrdersConfigHolder { return config.NewStaticOrdersConfigHolder(ordersCfg) },
			func() *telemetry.Metrics { return telemetry.NewMetrics(prometheus.NewRegistry()) },
		),
		docstore.Module,
		Module,
		fx.Populate(&store, &svc, &root, &identity),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.Eventually(t, func() bool { return root.State() == session.StateLive }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return svc.View().Phase == service.PhaseEmpty }, 2*time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, store.PutOrder(ctx, "u1", domain.OrderDocument{ID: "o1", Fields: map[string]any{
		"item": "86 Diamonds", "status": "completed", "cost": 1.5, "date": "13-05-2024",
	}}))
	require.NoError(t, store.PutOrder(ctx, "u1", domain.OrderDocument{ID: "o2", Fields: map[string]any{
		"item": "Weekly Pass", "status": "pending", "cost": 2, "date": "14-05-2024",
	}}))
	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1", OrderIDs: []string{"o1", "o2"}}))

	require.Eventually(t, func() bool { return svc.RawCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	orders := svc.CurrentOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, "o2", orders[0].ID)

	identity.SignOut()
	require.Eventually(t, func() bool { return root.State() == session.StateIdle }, 2*time.Second, 5*time.Millisecond)
}

func TestNewNormalizer(t *testing.T) {
	norm, err := NewNormalizer(config.Config{Timezone: "Asia/Jakarta"})
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", norm.Location.String())

	_, err = NewNormalizer(config.Config{Timezone: "Not/AZone"})
	assert.Error(t, err)
}
