// Command audit runs one full integrity audit, prints the report as JSON and
// exits with status 2 when the ledger is in critical health.
package main

import (
	"context"       // Run deadline
	"encoding/json" // Report output
	"os"            // Exit status
	"time"          // Timeout

	"delivery_ledger/internal/audit"      // Integrity auditor
	"delivery_ledger/internal/commission" // Commission rates
	"delivery_ledger/internal/config"     // Configuration
	"delivery_ledger/internal/db"         // Database connection

	"github.com/sirupsen/logrus" // Logging
)

func main() {
	logrus.SetOutput(os.Stderr) // Keep stdout for the report
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	conn, err := db.Open(cfg.DSN())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	auditor := audit.NewAuditor(conn, commission.NewRateStore(conn, cfg.RateCacheTTL), audit.WithSampleLimit(cfg.AuditSampleLimit))
	rep := auditor.RunFullAudit(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		logrus.Fatalf("failed to write report: %v", err)
	}
	if rep.SystemHealth == audit.HealthCritical {
		cancel()
		os.Exit(2)
	}
}
