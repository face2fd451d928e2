package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/medimarket/platform/internal/clock"
	"github.com/medimarket/platform/internal/config"
	"github.com/medimarket/platform/internal/migration"
	obsmetrics "github.com/medimarket/platform/internal/observability/metrics"
	"github.com/medimarket/platform/internal/server"
	"github.com/medimarket/platform/pkg/db"
	"github.com/medimarket/platform/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and the domain modules behind it
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
