package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/config"
	"github.com/smallbiznis/orderfeed/internal/docstore"
	"github.com/smallbiznis/orderfeed/internal/migration"
	"github.com/smallbiznis/orderfeed/internal/observability"
	"github.com/smallbiznis/orderfeed/internal/order"
	"github.com/smallbiznis/orderfeed/internal/ratelimit"
	"github.com/smallbiznis/orderfeed/internal/seed"
	"github.com/smallbiznis/orderfeed/internal/server"
	"github.com/smallbiznis/orderfeed/pkg/db"
	"github.com/smallbiznis/orderfeed/pkg/redisconn"
	"github.com/smallbiznis/orderfeed/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisconn.Module,
		clock.Module,

		migration.Module,
		seed.Module,

		// Order engine
		docstore.Module,
		order.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
