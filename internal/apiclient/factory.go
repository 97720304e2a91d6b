package apiclient

import (
	"net/http"

	"github.com/smallbiznis/billingportal/internal/config"
	"github.com/smallbiznis/billingportal/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("apiclient",
	fx.Provide(NewFactory),
)

// Factory builds per-caller clients that share one transport.
type Factory struct {
	baseURL  string
	http     *http.Client
	observer Observer
	log      *zap.Logger
}

type FactoryParams struct {
	fx.In

	Config  config.Config
	Metrics *metrics.APIMetrics `optional:"true"`
	Log     *zap.Logger
}

func NewFactory(p FactoryParams) *Factory {
	timeout := p.Config.APITimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Factory{
		baseURL: p.Config.APIBaseURL,
		http:    &http.Client{Timeout: timeout},
		log:     p.Log.Named("apiclient"),
	}
	if p.Metrics != nil {
		f.observer = p.Metrics
	}
	return f
}

// ForToken returns a client authenticated as the holder of token.
func (f *Factory) ForToken(token string) *Client {
	opts := []Option{WithHTTPClient(f.http), WithLogger(f.log)}
	if f.observer != nil {
		opts = append(opts, WithObserver(f.observer))
	}
	return New(f.baseURL, token, opts...)
}

func (f *Factory) Anonymous() *Client {
	return f.ForToken("")
}
