package router

import (
	"github.com/erp/fundflow/internal/infrastructure/auth"
	"github.com/erp/fundflow/internal/infrastructure/logger"
	"github.com/erp/fundflow/internal/interfaces/http/handler"
	"github.com/erp/fundflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Handlers groups the HTTP handlers served under the versioned API
type Handlers struct {
	FundRequests  *handler.FundRequestHandler
	WorkflowSteps *handler.WorkflowStepHandler
	Outbox        *handler.OutboxHandler
	System        *handler.SystemHandler
}

// EngineConfig carries everything needed to assemble the HTTP engine
type EngineConfig struct {
	Logger           *zap.Logger
	JWTService       *auth.JWTService
	ServiceName      string
	CORSAllowOrigins []string
	MaxBodySize      int64
	DefaultLanguage  language.Tag
	// RateLimiter is optional; nil disables rate limiting
	RateLimiter      *middleware.RateLimiter
	TracingEnabled   bool
	ProfilingEnabled bool
	// Meter is optional; nil disables HTTP metrics
	Meter    metric.Meter
	Handlers Handlers
}

// NewEngine builds the gin engine with the global middleware chain and every route.
// Health endpoints stay outside authentication.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled))
	if cfg.Meter != nil {
		engine.Use(middleware.HTTPMetrics(cfg.Meter))
	}
	engine.Use(middleware.Secure())

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(cors))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	if h := cfg.Handlers.System; h != nil {
		engine.GET("/health", h.Health)
		engine.GET("/api/v1/health", h.Health)
	}

	jwtConfig := middleware.DefaultJWTConfig(cfg.JWTService)
	jwtConfig.Logger = log

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(
		middleware.JWTAuthMiddlewareWithConfig(jwtConfig),
		middleware.SpanAttributes(),
		middleware.ProfilingLabels(cfg.ProfilingEnabled),
		middleware.Language(cfg.DefaultLanguage),
	)
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(cfg.RateLimiter))
	}

	if h := cfg.Handlers.FundRequests; h != nil {
		r.Register(FundRequestRoutes(h))
	}
	if h := cfg.Handlers.WorkflowSteps; h != nil {
		r.Register(WorkflowStepRoutes(h))
	}
	r.Register(SystemRoutes(cfg.Handlers.System, cfg.Handlers.Outbox))
	r.Setup()

	return engine
}

// FundRequestRoutes declares the fund request endpoints
func FundRequestRoutes(h *handler.FundRequestHandler) *DomainGroup {
	g := NewDomainGroup("fund-requests", "/fund-requests")
	g.GET("", h.List).
		POST("", h.Create).
		GET("/:id", h.Get).
		POST("/:id/transitions", h.Transition).
		POST("/:id/submit", h.Submit).
		POST("/:id/review", h.Review).
		POST("/:id/validate", h.Validate).
		POST("/:id/pay", h.Pay).
		POST("/:id/reject", h.Reject).
		POST("/:id/resubmit", h.Resubmit).
		GET("/:id/history", h.History).
		GET("/:id/progress", h.Progress).
		POST("/:id/payment-proof", h.UploadPaymentProof).
		GET("/:id/payment-proof", h.PaymentProofURL)
	return g
}

// WorkflowStepRoutes declares the workflow step registry endpoints
func WorkflowStepRoutes(h *handler.WorkflowStepHandler) *DomainGroup {
	g := NewDomainGroup("workflow-steps", "/workflow-steps")
	g.GET("", h.List).
		POST("", h.Create).
		POST("/defaults", h.SeedDefaults).
		PUT("/:id", h.Update).
		PATCH("/:id/active", h.SetActive)
	return g
}

// SystemRoutes declares system information and outbox administration endpoints.
// Either handler may be nil.
func SystemRoutes(system *handler.SystemHandler, outbox *handler.OutboxHandler) *DomainGroup {
	g := NewDomainGroup("system", "/system")
	if system != nil {
		g.GET("/info", system.GetSystemInfo)
	}
	if outbox != nil {
		g.Group("outbox", "/outbox").
			GET("/dead", outbox.GetDeadLetterEntries).
			POST("/dead/retry-all", outbox.RetryAllDeadEntries).
			GET("/stats", outbox.GetStats).
			GET("/:id", outbox.GetEntry).
			POST("/:id/retry", outbox.RetryDeadEntry)
	}
	return g
}
