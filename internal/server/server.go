package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meridianhq/meridian/internal/chain"
	"github.com/meridianhq/meridian/internal/checkout"
	checkoutdomain "github.com/meridianhq/meridian/internal/checkout/domain"
	checkoutwebhook "github.com/meridianhq/meridian/internal/checkout/webhook"
	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/credit"
	creditdomain "github.com/meridianhq/meridian/internal/credit/domain"
	"github.com/meridianhq/meridian/internal/events"
	"github.com/meridianhq/meridian/internal/observability"
	obsmiddleware "github.com/meridianhq/meridian/internal/observability/logger"
	obsmetrics "github.com/meridianhq/meridian/internal/observability/metrics"
	obstracing "github.com/meridianhq/meridian/internal/observability/tracing"
	"github.com/meridianhq/meridian/internal/organization"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"github.com/meridianhq/meridian/internal/payout"
	payoutdomain "github.com/meridianhq/meridian/internal/payout/domain"
	"github.com/meridianhq/meridian/internal/product"
	"github.com/meridianhq/meridian/internal/ratelimit"
	"github.com/meridianhq/meridian/internal/scheduler"
	"github.com/meridianhq/meridian/internal/subscription"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	organization.Module,
	product.Module,
	credit.Module,
	subscription.Module,
	chain.Module,
	events.Module,
	checkout.Module,
	payout.Module,
	ratelimit.Module,
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

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	orgSvc         orgdomain.Service
	checkoutSvc    checkoutdomain.Service
	webhookApplier *checkoutwebhook.Applier
	payoutSvc      payoutdomain.Service
	creditSvc      creditdomain.Service
	scheduler      *scheduler.Scheduler
	webhookLimiter *ratelimit.WebhookLimiter
	metrics        *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	OrgSvc         orgdomain.Service
	CheckoutSvc    checkoutdomain.Service
	WebhookApplier *checkoutwebhook.Applier
	PayoutSvc      payoutdomain.Service
	CreditSvc      creditdomain.Service
	Scheduler      *scheduler.Scheduler      `optional:"true"`
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
	Metrics        *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("server"),
		orgSvc:         p.OrgSvc,
		checkoutSvc:    p.CheckoutSvc,
		webhookApplier: p.WebhookApplier,
		payoutSvc:      p.PayoutSvc,
		creditSvc:      p.CreditSvc,
		scheduler:      p.Scheduler,
		webhookLimiter: p.WebhookLimiter,
		metrics:        p.Metrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Checkouts --------
	v1.GET("/checkouts/:id/status", s.APIKeyRequired(), s.GetCheckoutStatus)

	// -------- Chain webhooks --------
	// The API key rides in the body here: chain-side notifiers cannot
	// always set headers.
	v1.POST("/stellar/webhook", s.HandleStellarWebhook)

	// -------- Cron triggers --------
	v1.GET("/cron/charge", s.CronAuthRequired(), s.TriggerChargeSweep)

	// -------- Payouts --------
	v1.POST("/payouts", s.APIKeyRequired(), s.RequestPayouts)

	// -------- Credits --------
	v1.GET("/credits/balance", s.APIKeyRequired(), s.GetCreditBalance)
}
