package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	"github.com/smallbiznis/nestbill/internal/authorization"
	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/observability"
	obsmiddleware "github.com/smallbiznis/nestbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nestbill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/nestbill/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/nestbill/internal/payment/domain"
	"github.com/smallbiznis/nestbill/internal/receipt"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	subscriptionservice "github.com/smallbiznis/nestbill/internal/subscription/service"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, srv *Server, log *zap.Logger) {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	catalogSvc      catalogdomain.Service
	subs            subscriptiondomain.Repository
	subscriptionSvc *subscriptionservice.Service
	taxSvc          taxdomain.Calculator
	webhookSvc      paymentdomain.WebhookService
	receiptSvc      *receipt.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	CatalogSvc      catalogdomain.Service
	Subs            subscriptiondomain.Repository
	SubscriptionSvc *subscriptionservice.Service
	TaxSvc          taxdomain.Calculator
	WebhookSvc      paymentdomain.WebhookService
	ReceiptSvc      *receipt.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		catalogSvc:      p.CatalogSvc,
		subs:            p.Subs,
		subscriptionSvc: p.SubscriptionSvc,
		taxSvc:          p.TaxSvc,
		webhookSvc:      p.WebhookSvc,
		receiptSvc:      p.ReceiptSvc,
	}
	if p.Cfg.IsProduction() && p.Cfg.Auth.APIToken == "" {
		svc.log.Warn("API_TOKEN is empty, identity headers are trusted without proxy authentication")
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/native", s.HandlePaymentWebhook(paymentdomain.ProviderNative))
	webhooks.POST("/stripe", s.HandlePaymentWebhook(paymentdomain.ProviderStripe))
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.ActorRequired())

	// -------- Plans & Pricing --------
	api.GET("/plans", s.authorize(authorization.ObjectPricing, authorization.ActionPricingQuote), s.ListPlans)
	api.POST("/pricing/quote", s.authorize(authorization.ObjectPricing, authorization.ActionPricingQuote), s.QuotePricing)

	// -------- Subscriptions --------
	api.POST("/subscriptions/trial", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionStartTrial), s.StartTrial)
	api.GET("/subscriptions/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/convert", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionConvert), s.ConvertSubscription)
	api.POST("/subscriptions/:id/cancel", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)

	// -------- Billing Records --------
	api.GET("/subscriptions/:id/billing-records", s.authorize(authorization.ObjectBillingRecord, authorization.ActionBillingRecordView), s.ListBillingRecords)
	api.GET("/billing-records/:id/receipt", s.authorize(authorization.ObjectBillingRecord, authorization.ActionBillingRecordReceipt), s.GetReceipt)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
