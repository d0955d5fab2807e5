package handler

import (
	"settlement-engine/internal/adapter/http/middleware"
	"settlement-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Initiator         ports.PaymentInitiator
	Reconciler        ports.CallbackReconciler
	RedriveSvc        ports.RedriveService
	StatusSvc         ports.StatusService
	AccountSvc        ports.AccountService
	TokenSvc          ports.TokenService
	HashSvc           ports.HashService
	CallbackTokenHash string                    // "" = callback token check disabled
	RateLimitStore    middleware.RateLimitStore // nil = rate limiting disabled
	HealthCheckers    []ports.HealthChecker
	AuditSvc          ports.AuditService // nil = audit logging disabled
	OpenAPISpec       []byte             // nil = /swagger/spec returns 404
	Mode              string             // gin mode; defaults to release
	Logger            zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	docs := NewDocsHandler(deps.OpenAPISpec)
	swagger := r.Group("/swagger")
	{
		swagger.GET("", docs.UI)
		swagger.GET("/spec", docs.Spec)
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rules[group], deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Gateway callbacks (path token) ---
	callbackHandler := NewCallbackHandler(deps.Reconciler, deps.Logger)
	callbacks := v1.Group("/callbacks", rl(middleware.GroupCallbacks))
	{
		callbacks.POST("/stk/:"+middleware.ParamCallbackToken,
			middleware.CallbackTokenAuth(deps.HashSvc, deps.CallbackTokenHash, deps.Logger),
			callbackHandler.STKCallback)
	}

	// --- JWT-authenticated user routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	paymentHandler := NewPaymentHandler(deps.Initiator, deps.StatusSvc)
	accountHandler := NewAccountHandler(deps.AccountSvc)

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("", rl(middleware.GroupPayments), paymentHandler.Initiate)
		payments.GET("/:checkout_id/status", rl(middleware.GroupStatus), paymentHandler.Status)
	}
	v1.GET("/payment-requests/:id", jwtAuth, rl(middleware.GroupStatus), paymentHandler.GetPayment)
	v1.GET("/accounts/me", jwtAuth, rl(middleware.GroupStatus), accountHandler.GetAccount)
	v1.GET("/holdings", jwtAuth, rl(middleware.GroupStatus), accountHandler.ListHoldings)

	// --- Operator routes ---
	adminHandler := NewAdminHandler(deps.RedriveSvc, deps.Reconciler)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireRole(ports.RoleAdmin), rl(middleware.GroupAdmin))
	{
		admin.POST("/redrive", adminHandler.Redrive)
		admin.POST("/payments/:checkout_id/requery", adminHandler.Requery)
	}

	return r
}
