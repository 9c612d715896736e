package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/telemetry/internal/clock"
	"github.com/smallbiznis/telemetry/internal/config"
	"github.com/smallbiznis/telemetry/internal/migration"
	"github.com/smallbiznis/telemetry/internal/observability"
	"github.com/smallbiznis/telemetry/internal/server"
	"github.com/smallbiznis/telemetry/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
