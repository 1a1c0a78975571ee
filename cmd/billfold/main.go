package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billfold/internal/analytics"
	"github.com/smallbiznis/billfold/internal/clock"
	"github.com/smallbiznis/billfold/internal/config"
	"github.com/smallbiznis/billfold/internal/invoice"
	"github.com/smallbiznis/billfold/internal/invoice/enrich"
	"github.com/smallbiznis/billfold/internal/migration"
	"github.com/smallbiznis/billfold/internal/observability"
	"github.com/smallbiznis/billfold/internal/paymentprovider"
	"github.com/smallbiznis/billfold/internal/providers/email"
	"github.com/smallbiznis/billfold/internal/server"
	"github.com/smallbiznis/billfold/internal/vat"
	"github.com/smallbiznis/billfold/internal/webhook"
	"github.com/smallbiznis/billfold/pkg/db"
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

		analytics.Module,
		vat.Module,
		paymentprovider.Module,
		email.Module,
		invoice.Module,
		webhook.Module,
		enrich.Module,

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
