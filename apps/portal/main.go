package main

import (
	"github.com/smallbiznis/billingportal/internal/apiclient"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	"github.com/smallbiznis/billingportal/internal/cache"
	"github.com/smallbiznis/billingportal/internal/clock"
	"github.com/smallbiznis/billingportal/internal/config"
	"github.com/smallbiznis/billingportal/internal/invoice"
	"github.com/smallbiznis/billingportal/internal/observability"
	"github.com/smallbiznis/billingportal/internal/ratelimit"
	"github.com/smallbiznis/billingportal/internal/server"
	"github.com/smallbiznis/billingportal/internal/wallet"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(clock.System),
		cache.Module,

		session.Module,
		apiclient.Module,
		ratelimit.Module,
		wallet.Module,
		invoice.Module,

		server.Module,
	)
	app.Run()
}
