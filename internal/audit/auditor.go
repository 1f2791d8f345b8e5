// Package audit runs read-only integrity checks over the ledger.
package audit

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"delivery_ledger/internal/commission"
	"delivery_ledger/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Severity of a failed check.
type Severity string

// Severities
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Health is the overall verdict of a run.
type Health string

// Health values
const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// CategorySystemError marks a check that could not run.
const CategorySystemError = "System Error"

// DefaultSampleLimit caps the affected ids kept per check.
const DefaultSampleLimit = 10

const batchSize = 500

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string   `json:"name"`             // Stable check identifier
	Category string   `json:"category"`         // Area of the ledger checked
	Severity Severity `json:"severity"`         // critical or warning
	Passed   bool     `json:"passed"`           // No violations found
	Message  string   `json:"message"`          // Summary for operators
	Checked  int64    `json:"checked"`          // Rows examined
	Affected int64    `json:"affected"`         // Rows violating the check
	Sample   []uint   `json:"sample,omitempty"` // First offending ids, capped by the sample limit
}

// Report is the result of RunFullAudit.
type Report struct {
	RunID        string        `json:"run_id"`        // Unique id of this run
	StartedAt    time.Time     `json:"started_at"`    // Run start
	FinishedAt   time.Time     `json:"finished_at"`   // Run end
	TotalChecks  int           `json:"total_checks"`  // Checks executed
	Passed       int           `json:"passed"`        // Checks without violations
	Failed       int           `json:"failed"`        // Checks with violations
	Warnings     int           `json:"warnings"`      // Failed checks of warning severity
	SystemHealth Health        `json:"system_health"` // healthy, warning or critical
	Checks       []CheckResult `json:"checks"`        // Per-check results
}

// Auditor verifies the ledger invariants. It never writes.
type Auditor struct {
	db          *gorm.DB
	rates       commission.RateProvider
	sampleLimit int
	now         func() time.Time
	log         logrus.FieldLogger
}

// Option customises an Auditor.
type Option func(*Auditor)

// WithSampleLimit caps the ids reported per failed check.
func WithSampleLimit(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.sampleLimit = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Auditor) { a.log = log }
}

// NewAuditor builds an Auditor.
func NewAuditor(db *gorm.DB, rates commission.RateProvider, opts ...Option) *Auditor {
	a := &Auditor{db: db, rates: rates, sampleLimit: DefaultSampleLimit, now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// check is one named invariant. run fills in Passed, Message, Checked,
// Affected and Sample; an error means the check could not be evaluated.
type check struct {
	name     string
	category string
	severity Severity
	run      func(ctx context.Context, res *CheckResult) error
}

func (a *Auditor) checks() []check {
	return []check{
		{"commission_rates", "Configuration", SeverityCritical, a.checkRates},
		{"order_totals", "Orders", SeverityWarning, a.checkOrderTotals},
		{"commission_split", "Orders", SeverityCritical, a.checkCommissionSplit},
		{"wallet_balances", "Wallets", SeverityCritical, a.checkWalletBalances},
		{"transaction_chain", "Transactions", SeverityCritical, a.checkTransactionChain},
		{"payment_amounts", "Payments", SeverityWarning, a.checkPaymentAmounts},
		{"driver_earnings", "Orders", SeverityWarning, a.checkDriverEarnings},
		{"cash_owed", "Wallets", SeverityCritical, a.checkCashOwed},
		{"non_negative_wallets", "Wallets", SeverityCritical, a.checkNonNegative},
	}
}

// RunFullAudit runs every check and summarises them. A check that errors or
// panics is reported as a critical System Error finding; the others still run.
func (a *Auditor) RunFullAudit(ctx context.Context) *Report {
	rep := &Report{RunID: uuid.NewString(), StartedAt: a.now().UTC()}
	log := a.log.WithField("run_id", rep.RunID)
	log.Info("Integrity audit started")

	var failed []string
	critical := false
	for _, c := range a.checks() {
		res := a.runCheck(ctx, c)
		rep.Checks = append(rep.Checks, res)
		rep.TotalChecks++
		if res.Passed {
			rep.Passed++
			continue
		}
		rep.Failed++
		failed = append(failed, res.Name)
		if res.Severity == SeverityCritical {
			critical = true
		} else {
			rep.Warnings++
		}
		log.WithFields(logrus.Fields{
			"check":    res.Name,
			"category": res.Category,
			"severity": res.Severity,
			"affected": res.Affected,
			"sample":   res.Sample,
		}).Warn(res.Message)
	}

	switch {
	case critical:
		rep.SystemHealth = HealthCritical
	case rep.Failed > 0:
		rep.SystemHealth = HealthWarning
	default:
		rep.SystemHealth = HealthHealthy
	}
	rep.FinishedAt = a.now().UTC()

	took := rep.FinishedAt.Sub(rep.StartedAt)
	metrics.RecordAudit(string(rep.SystemHealth), failed, took)
	log.WithFields(logrus.Fields{
		"health":   rep.SystemHealth,
		"passed":   rep.Passed,
		"failed":   rep.Failed,
		"warnings": rep.Warnings,
		"took":     took.String(),
	}).Info("Integrity audit finished")
	return rep
}

func (a *Auditor) runCheck(ctx context.Context, c check) (res CheckResult) {
	res = CheckResult{Name: c.name, Category: c.category, Severity: c.severity}
	systemError := func(msg string) {
		res = CheckResult{
			Name:     c.name,
			Category: CategorySystemError,
			Severity: SeverityCritical,
			Message:  msg,
		}
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.WithFields(logrus.Fields{
				"check": c.name,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Audit check panicked")
			systemError(fmt.Sprintf("check %s panicked: %v", c.name, r))
		}
	}()

	if err := c.run(ctx, &res); err != nil {
		a.log.WithFields(logrus.Fields{"check": c.name, "error": err.Error()}).Error("Audit check failed to run")
		systemError(fmt.Sprintf("check %s could not run: %v", c.name, err))
	}
	return res
}
