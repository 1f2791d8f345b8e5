// Package scheduler runs the periodic integrity audit and cash debt sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"delivery_ledger/internal/audit"
	"delivery_ledger/internal/cashdebt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// JobTimeout bounds a single scheduled run.
const JobTimeout = 10 * time.Minute

// Auditor is satisfied by *audit.Auditor.
type Auditor interface {
	RunFullAudit(ctx context.Context) *audit.Report
}

// Sweeper is satisfied by *cashdebt.Tracker.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (cashdebt.SweepResult, error)
}

// Scheduler wraps a cron runner whose jobs share one base context.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger
}

// New builds a stopped Scheduler. Jobs recover from panics and are skipped
// while a previous run of the same job is still going.
func New(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	clog := cronLogger{log: log.WithField("component", "scheduler")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// AddAudit schedules a full audit. Critical results are logged at Error.
func (s *Scheduler) AddAudit(spec string, a Auditor) (cron.EntryID, error) {
	return s.add("audit", spec, func(ctx context.Context) {
		rep := a.RunFullAudit(ctx)
		entry := s.log.WithFields(logrus.Fields{
			"run_id": rep.RunID,
			"health": rep.SystemHealth,
			"failed": rep.Failed,
		})
		if rep.SystemHealth == audit.HealthCritical {
			entry.Error("Scheduled audit found critical issues")
			return
		}
		entry.Info("Scheduled audit finished")
	})
}

// AddDebtSweep schedules the overdue cash debt sweep.
func (s *Scheduler) AddDebtSweep(spec string, sw Sweeper) (cron.EntryID, error) {
	return s.add("debt_sweep", spec, func(ctx context.Context) {
		if _, err := sw.SweepOverdue(ctx); err != nil {
			s.log.WithFields(logrus.Fields{"error": err.Error()}).Error("Scheduled cash debt sweep failed")
		}
	})
}

func (s *Scheduler) add(name, spec string, job func(ctx context.Context)) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, JobTimeout)
		defer cancel()
		job(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "schedule": spec}).Info("Job scheduled")
	return id, nil
}

// RunNow runs a scheduled job synchronously through its wrappers.
func (s *Scheduler) RunNow(id cron.EntryID) error {
	e := s.cron.Entry(id)
	if !e.Valid() {
		return fmt.Errorf("no scheduled job with id %d", id)
	}
	e.WrappedJob.Run()
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
