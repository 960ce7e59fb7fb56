package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nestbill/internal/audit"
	"github.com/smallbiznis/nestbill/internal/authorization"
	"github.com/smallbiznis/nestbill/internal/catalog"
	"github.com/smallbiznis/nestbill/internal/clock"
	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/invoice"
	"github.com/smallbiznis/nestbill/internal/migration"
	"github.com/smallbiznis/nestbill/internal/observability"
	"github.com/smallbiznis/nestbill/internal/payment"
	"github.com/smallbiznis/nestbill/internal/receipt"
	"github.com/smallbiznis/nestbill/internal/reconciliation"
	"github.com/smallbiznis/nestbill/internal/scheduler"
	"github.com/smallbiznis/nestbill/internal/server"
	"github.com/smallbiznis/nestbill/internal/subscription"
	"github.com/smallbiznis/nestbill/internal/tax"
	"github.com/smallbiznis/nestbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		tax.Module,
		catalog.Module,
		audit.Module,
		invoice.Module,
		subscription.Module,
		reconciliation.Module,
		payment.Module,
		receipt.Module,
		authorization.Module,
		scheduler.Module,

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
