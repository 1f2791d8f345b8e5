package main

import (
	"context"   // Shutdown deadline
	"errors"    // Server close detection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Graceful shutdown
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"delivery_ledger/internal/api"        // Custom package for API handlers
	"delivery_ledger/internal/audit"      // Integrity auditor
	"delivery_ledger/internal/cashdebt"   // Cash debt tracker
	"delivery_ledger/internal/commission" // Commission rates
	"delivery_ledger/internal/config"     // Custom package for configuration
	"delivery_ledger/internal/db"         // Database connection
	"delivery_ledger/internal/middleware" // Custom package for middleware
	"delivery_ledger/internal/payout"     // Delivery payouts
	"delivery_ledger/internal/scheduler"  // Cron jobs
	"delivery_ledger/internal/settlement" // Cash settlement
	"delivery_ledger/internal/wallet"     // Wallet ledger

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	// Setup logger
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	conn, err := db.Open(cfg.DSN()) // Connect to MySQL
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Services
	ledger := wallet.New(conn, wallet.WithCache(redisClient))
	rates := commission.NewRateStore(conn, cfg.RateCacheTTL)
	cash := cashdebt.NewTracker(conn, ledger, cashdebt.Policy{
		MaxCashOwed:    cfg.MaxCashOwed,
		WarnAfterDays:  cfg.DebtWarnDays,
		BlockAfterDays: cfg.DebtBlockDays,
	})
	auditor := audit.NewAuditor(conn, rates, audit.WithSampleLimit(cfg.AuditSampleLimit))

	// Periodic jobs
	jobs := scheduler.New(logrus.StandardLogger())
	if _, err := jobs.AddAudit(cfg.AuditSchedule, auditor); err != nil {
		logrus.Fatalf("failed to schedule audit: %v", err)
	}
	if _, err := jobs.AddDebtSweep(cfg.DebtSweepSchedule, cash); err != nil {
		logrus.Fatalf("failed to schedule cash debt sweep: %v", err)
	}
	jobs.Start()
	defer jobs.Stop()

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(api.Deps{
		DB:           conn,
		Redis:        redisClient,
		JWTSecret:    cfg.JWTSecret,
		Ledger:       ledger,
		Cash:         cash,
		Rates:        rates,
		Settlement:   settlement.NewReconciler(conn, ledger),
		Payout:       payout.NewDistributor(conn, rates, ledger, cash),
		Auditor:      auditor,
		AuditLimiter: middleware.NewRateLimiter(cfg.AuditRatePerMinute, 1),
	})
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running") // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for SIGINT/SIGTERM, then drain in-flight requests
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("graceful shutdown failed: %v", err)
	}
}
