package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/billingportal/internal/apiclient"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	"github.com/smallbiznis/billingportal/internal/config"
	"github.com/smallbiznis/billingportal/internal/invoice/download"
	"github.com/smallbiznis/billingportal/internal/invoice/format"
	"github.com/smallbiznis/billingportal/internal/observability"
	obsmiddleware "github.com/smallbiznis/billingportal/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billingportal/internal/observability/metrics"
	obstracing "github.com/smallbiznis/billingportal/internal/observability/tracing"
	"github.com/smallbiznis/billingportal/internal/ratelimit"
	walletservice "github.com/smallbiznis/billingportal/internal/wallet/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("portal listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// ClientFactory builds an API client acting with token.
type ClientFactory func(token string) PortalAPI

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	sessions     *session.Manager
	clients      ClientFactory
	wallet       *walletservice.Service
	downloads    *download.Registry
	loginLimiter *ratelimit.LoginLimiter
	locker       ratelimit.Locker
	display      *config.DisplayConfigHolder
	obsMetrics   *obsmetrics.Metrics
	views        *views
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Sessions     *session.Manager
	APIClients   *apiclient.Factory
	Wallet       *walletservice.Service
	Downloads    *download.Registry
	LoginLimiter *ratelimit.LoginLimiter `optional:"true"`
	Locker       ratelimit.Locker
	Display      *config.DisplayConfigHolder
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("server"),
		sessions: p.Sessions,
		clients: func(token string) PortalAPI {
			return p.APIClients.ForToken(token)
		},
		wallet:       p.Wallet,
		downloads:    p.Downloads,
		loginLimiter: p.LoginLimiter,
		locker:       p.Locker,
		display:      p.Display,
		obsMetrics:   p.ObsMetrics,
		views:        mustLoadViews(),
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.Home)

	s.engine.GET("/login", s.LoginPage)
	s.engine.POST("/login", s.LoginRateLimit(), s.Login)
	s.engine.GET("/register", s.RegisterPage)
	s.engine.POST("/register", s.LoginRateLimit(), s.Register)
	s.engine.POST("/logout", s.Logout)

	users := s.engine.Group("/users/:id", s.SessionRequired())
	{
		users.GET("", s.Profile)
		users.POST("/wallet/top-up", s.TopUp)
		users.GET("/invoices", s.ListInvoices)
		users.GET("/invoices/:invoiceId/pdf", s.DownloadInvoice)
	}

	api := s.engine.Group("/api", s.SessionRequired())
	api.GET("/users/:id/invoices/downloads", s.ListDownloadStates)

	s.engine.NoRoute(func(c *gin.Context) {
		s.renderError(c, ErrNotFound)
	})
}

// formatter reflects the current display config, which may reload at runtime.
func (s *Server) formatter() format.Formatter {
	d := s.display.Get()
	return format.New(d.DateLayout, d.Currency)
}
