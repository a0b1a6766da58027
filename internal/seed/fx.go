package seed

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, clk clock.Clock, cfg config.Config, log *zap.Logger) error {
		if cfg.Seed.Orders <= 0 {
			return nil
		}
		created, err := EnsureDemoOrders(context.Background(), conn, node, clk, cfg.Seed.OwnerID, cfg.Seed.Orders)
		if err != nil {
			return err
		}
		log.Named("seed").Info("demo orders ensured", zap.Int("created", created))
		return nil
	}),
)
