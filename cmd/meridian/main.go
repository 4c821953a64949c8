package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/meridianhq/meridian/internal/clock"
	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/migration"
	"github.com/meridianhq/meridian/internal/observability"
	"github.com/meridianhq/meridian/internal/scheduler"
	"github.com/meridianhq/meridian/internal/server"
	"github.com/meridianhq/meridian/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP surface plus the domain modules it serves
		server.Module,

		// Background billing sweeps
		scheduler.Module,

		migration.Module,
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
