package vat

import (
	"github.com/smallbiznis/billfold/internal/vat/service"
	"github.com/smallbiznis/billfold/internal/vat/vies"
	"go.uber.org/fx"
)

var Module = fx.Module("vat",
	fx.Provide(service.NewCalculator),
	fx.Provide(vies.NewClient),
)
