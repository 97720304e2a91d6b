package wallet

import (
	obsmetrics "github.com/smallbiznis/billingportal/internal/observability/metrics"
	"github.com/smallbiznis/billingportal/internal/wallet/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("wallet",
	fx.Provide(newService),
)

type serviceParams struct {
	fx.In

	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func newService(p serviceParams) *service.Service {
	return service.NewService(p.Log, p.Metrics)
}
