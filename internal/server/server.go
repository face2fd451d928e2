package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medimarket/platform/internal/admission"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
	"github.com/medimarket/platform/internal/audit"
	auditdomain "github.com/medimarket/platform/internal/audit/domain"
	"github.com/medimarket/platform/internal/billing"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	"github.com/medimarket/platform/internal/config"
	"github.com/medimarket/platform/internal/dispute"
	disputedomain "github.com/medimarket/platform/internal/dispute/domain"
	"github.com/medimarket/platform/internal/dlock"
	"github.com/medimarket/platform/internal/ledger"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	"github.com/medimarket/platform/internal/notification"
	obsmetrics "github.com/medimarket/platform/internal/observability/metrics"
	"github.com/medimarket/platform/internal/pricing"
	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	dlock.Module,
	notification.Module,
	ledger.Module,
	pricing.Module,
	billing.Module,
	admission.Module,
	dispute.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ActorContext())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	ledgerSvc    ledgerdomain.Service
	pricingSvc   pricingdomain.Service
	billingSvc   billingdomain.Service
	admissionSvc admissiondomain.Service
	disputeSvc   disputedomain.Service
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	LedgerSvc    ledgerdomain.Service
	PricingSvc   pricingdomain.Service
	BillingSvc   billingdomain.Service
	AdmissionSvc admissiondomain.Service
	DisputeSvc   disputedomain.Service
	AuditSvc     auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		ledgerSvc:    p.LedgerSvc,
		pricingSvc:   p.PricingSvc,
		billingSvc:   p.BillingSvc,
		admissionSvc: p.AdmissionSvc,
		disputeSvc:   p.DisputeSvc,
		auditSvc:     p.AuditSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	leads := api.Group("/leads")
	leads.POST("/admit", s.AdmitLead)
	leads.POST("/force-admit", s.ForceAdmitLead)
	leads.GET("/:id/billing", s.GetLeadBilling)

	credits := api.Group("/credits")
	credits.POST("/allocate", s.AllocateCredits)
	credits.POST("/bulk-allocate", s.BulkAllocateCredits)
	credits.POST("/debit", s.DebitCredits)
	credits.POST("/transfer", s.TransferCredits)

	clinics := api.Group("/clinics")
	clinics.GET("/:id/balance", s.GetClinicBalance)
	clinics.GET("/:id/transactions", s.ListClinicTransactions)

	pricingGroup := api.Group("/pricing")
	pricingGroup.GET("/tiers", s.ListPricingTiers)
	pricingGroup.PUT("/tiers", s.ReplacePricingTiers)

	disputes := api.Group("/disputes")
	disputes.POST("", s.OpenDispute)
	disputes.GET("", s.ListDisputes)
	disputes.GET("/:id", s.GetDispute)
	disputes.POST("/:id/resolve", s.ResolveDispute)

	api.GET("/audit-logs", s.ListAuditLogs)

	webhooks := api.Group("/webhooks")
	webhooks.POST("/payment", s.PaymentWebhook)
}
