package paymentprovider

import (
	"github.com/smallbiznis/billfold/internal/paymentprovider/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentprovider",
	fx.Provide(stripe.NewGateway),
)
