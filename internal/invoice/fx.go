package invoice

import (
	"github.com/smallbiznis/billfold/internal/invoice/ledger"
	"github.com/smallbiznis/billfold/internal/invoice/render"
	"github.com/smallbiznis/billfold/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(ledger.New),
	fx.Provide(service.NewService),
	fx.Provide(render.NewRenderer),
)
