package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goldsip/goldsip/internal/config"
	"github.com/goldsip/goldsip/internal/gateway"
	"github.com/goldsip/goldsip/internal/redemption"
	redemptiondomain "github.com/goldsip/goldsip/internal/redemption/domain"
	"github.com/goldsip/goldsip/internal/subscription"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	"github.com/goldsip/goldsip/internal/webhook"
	webhookdomain "github.com/goldsip/goldsip/internal/webhook/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	gateway.Module,
	subscription.Module,
	redemption.Module,
	webhook.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config) *gin.Engine {
	return NewEngine(cfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	subscriptionSvc subscriptiondomain.Service
	redemptionSvc   redemptiondomain.Service
	webhookSvc      webhookdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	RedemptionSvc   redemptiondomain.Service
	WebhookSvc      webhookdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		subscriptionSvc: p.SubscriptionSvc,
		redemptionSvc:   p.RedemptionSvc,
		webhookSvc:      p.WebhookSvc,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	subs := api.Group("/subscriptions")
	subs.POST("", s.SetupSubscription)
	subs.GET("", s.ListSubscriptions)
	subs.POST("/reconcile", s.ReconcileSubscriptions)
	subs.POST("/:id/reconcile", s.ReconcileSubscription)
	subs.POST("/:id/cancel", s.CancelSubscription)
	subs.POST("/:id/pause", s.PauseSubscription)
	subs.POST("/:id/unpause", s.UnpauseSubscription)
	subs.POST("/:id/revoke", s.RevokeSubscription)

	reds := api.Group("/redemptions")
	reds.POST("/notify", s.NotifyRedemption)
	reds.POST("/:orderId/execute", s.ExecuteRedemption)
	reds.GET("/:orderId/status", s.RedemptionStatus)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhooks/gateway", s.GatewayWebhook)
}
