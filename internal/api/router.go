package api

import (
	"delivery_ledger/internal/audit"      // Integrity audit
	"delivery_ledger/internal/cashdebt"   // Cash debt policy
	"delivery_ledger/internal/commission" // Commission rates
	"delivery_ledger/internal/domain"     // Roles
	"delivery_ledger/internal/metrics"    // Prometheus registry
	"delivery_ledger/internal/middleware" // Auth and throttling
	"delivery_ledger/internal/payout"     // Delivery completion
	"delivery_ledger/internal/settlement" // Cash reconciliation
	"delivery_ledger/internal/wallet"     // Wallet ledger

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// Deps are the services the HTTP layer calls into
type Deps struct {
	DB           *gorm.DB
	Redis        *redis.Client // Optional; nil disables admin list caching
	JWTSecret    string
	Ledger       *wallet.Ledger
	Cash         *cashdebt.Tracker
	Rates        *commission.RateStore
	Settlement   *settlement.Reconciler
	Payout       *payout.Distributor
	Auditor      *audit.Auditor
	AuditLimiter *middleware.RateLimiter
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	var rdb redis.Cmdable // Stays a nil interface without Redis
	if d.Redis != nil {
		rdb = d.Redis
	}
	auth := middleware.JWTAuthMiddleware(d.JWTSecret)

	r.GET("/metrics", gin.WrapH(metrics.Handler())) // Prometheus scrape endpoint

	// Wallet routes, any authenticated user
	walletGroup := r.Group("/wallet", auth)
	walletGroup.GET("", GetWalletHandler(d.Ledger))
	walletGroup.GET("/transactions", GetTransactionHistoryHandler(d.Ledger))
	walletGroup.POST("/withdraw", WithdrawHandler(d.Ledger))

	// Driver routes
	driverOnly := middleware.RequireRole(d.DB, domain.RoleDriver)
	driverGroup := r.Group("/driver", auth, driverOnly)
	driverGroup.GET("/cash-status", CashStatusHandler(d.Cash))
	driverGroup.POST("/remit", RemitHandler(d.Cash))

	// Order lifecycle
	orderGroup := r.Group("/orders", auth)
	orderGroup.POST("/:id/deliver", driverOnly, DeliverHandler(d.Payout))
	orderGroup.POST("/:id/settle", middleware.RequireRole(d.DB, domain.RoleBusiness), SettleHandler(d.Settlement, d.Cash))

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin", auth, middleware.AdminOnlyMiddleware(d.DB))
	adminGroup.GET("/users", ListUsersHandler(d.DB, rdb))
	adminGroup.GET("/transactions", ListTransactionsHandler(d.DB, rdb))
	audits := []gin.HandlerFunc{AuditHandler(d.Auditor)}
	if d.AuditLimiter != nil {
		audits = append([]gin.HandlerFunc{d.AuditLimiter.Handler()}, audits...) // Audits are expensive
	}
	adminGroup.GET("/audit", audits...)
	adminGroup.GET("/rates", GetRatesHandler(d.Rates))
	adminGroup.PUT("/rates", UpdateRatesHandler(d.Rates))
	adminGroup.POST("/cash-debt/sweep", SweepCashDebtHandler(d.Cash))
	adminGroup.POST("/users/:id/reinstate", ReinstateDriverHandler(d.Cash))

	return r
}
