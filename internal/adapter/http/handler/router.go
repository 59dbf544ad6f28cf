package handler

import (
	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/adapter/http/middleware"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Wallets        ports.WalletService
	Ledger         ports.LedgerService
	Escrow         ports.EscrowService
	Distribution   ports.DistributionService
	Payments       ports.PaymentService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	RateLimiter    ports.RateLimiter // nil = rate limiting disabled
	Internal       config.InternalConfig
	HealthCheckers []ports.HealthChecker
	MetricsPath    string // empty = /metrics not served
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.MaxBodySize(1 << 20))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsPath != "" {
		r.GET(deps.MetricsPath, metrics.Handler())
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimiter == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}
	audit := middleware.AuditLog(deps.Logger)

	// --- Provider callbacks (authenticated by payload signature) ---
	callbackHandler := NewCallbackHandler(deps.Payments, deps.Logger)
	r.POST("/api/v1/payments/momo/ipn", rl("provider"), callbackHandler.MoMoIPN)

	// --- Order subsystem (HMAC-signed) ---
	orderHandler := NewOrderHandler(deps.Escrow, deps.Distribution)
	internalAuth := middleware.InternalAuth(deps.Internal, deps.SigSvc, deps.NonceStore, deps.Logger)
	orders := r.Group("/internal/v1/orders/:orderId", internalAuth, rl("orders"), audit)
	{
		orders.POST("/hold", orderHandler.Hold)
		orders.POST("/release", orderHandler.Release)
		orders.POST("/refund", orderHandler.Refund)
		orders.POST("/distribute", orderHandler.Distribute)
	}

	// --- Actor endpoints (JWT) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	walletHandler := NewWalletHandler(deps.Wallets, deps.Ledger, deps.Payments)
	wallet := r.Group("/api/v1/wallet", jwtAuth)
	{
		wallet.GET("", rl("wallet"), walletHandler.GetBalance)
		wallet.GET("/transactions", rl("wallet"), walletHandler.ListTransactions)
		wallet.POST("/deposits", rl("deposits"), walletHandler.CreateDeposit)
		wallet.POST("/withdrawals", rl("withdrawals"), walletHandler.CreateWithdrawal)
	}

	// --- Administration (JWT, admin only) ---
	adminHandler := NewAdminHandler(deps.Wallets, deps.Ledger)
	admin := r.Group("/api/v1/admin", jwtAuth, middleware.RequireOwnerType(domain.OwnerTypeAdmin), rl("admin"), audit)
	{
		admin.GET("/transactions/:id", adminHandler.GetTransaction)
		admin.PATCH("/transactions/:id/status", adminHandler.UpdateTransactionStatus)
		admin.POST("/wallets/:walletId/deactivate", adminHandler.DeactivateWallet)
		admin.POST("/wallets/:walletId/activate", adminHandler.ActivateWallet)
	}

	return r
}
