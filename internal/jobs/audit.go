package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finapi/internal/repository"
	"github.com/Dan9191/finapi/internal/service"
)

// AuditReport summarizes one audit run
type AuditReport struct {
	Users     int
	Anomalies int
	Negative  []uuid.UUID
}

// BalanceAuditor periodically replays every user's statements and reports
// balances below zero or statements the calculator could not interpret.
type BalanceAuditor struct {
	users   repository.UserDirectory
	ledger  repository.StatementStore
	calc    *service.BalanceCalculator
	log     *logrus.Logger
	timeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// NewBalanceAuditor initializes a new auditor
func NewBalanceAuditor(users repository.UserDirectory, ledger repository.StatementStore, log *logrus.Logger) *BalanceAuditor {
	return &BalanceAuditor{
		users:   users,
		ledger:  ledger,
		calc:    service.NewBalanceCalculator(log),
		log:     log,
		timeout: 5 * time.Minute,
	}
}

// Start schedules RunOnce according to a cron spec such as "@every 1h" or "0 3 * * *"
func (a *BalanceAuditor) Start(schedule string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cron != nil {
		return fmt.Errorf("balance audit already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, a.runScheduled); err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
	}
	c.Start()
	a.cron = c

	a.log.Infof("Balance audit scheduled: %s", schedule)
	return nil
}

// Stop waits for a running audit to finish
func (a *BalanceAuditor) Stop() {
	a.mu.Lock()
	c := a.cron
	a.cron = nil
	a.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	a.log.Info("Balance audit stopped")
}

func (a *BalanceAuditor) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if _, err := a.RunOnce(ctx); err != nil {
		a.log.Errorf("Balance audit failed: %v", err)
	}
}

// RunOnce audits every user once
func (a *BalanceAuditor) RunOnce(ctx context.Context) (*AuditReport, error) {
	ids, err := a.users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	report := &AuditReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		statements, err := a.ledger.ListStatementsForUser(ctx, id)
		if err != nil {
			return report, fmt.Errorf("failed to list statements for user %s: %w", id, err)
		}

		balance, anomalies := a.calc.Replay(id, statements)
		report.Users++
		report.Anomalies += anomalies
		if balance.IsNegative() {
			report.Negative = append(report.Negative, id)
			a.log.WithFields(logrus.Fields{
				"user_id": id,
				"balance": balance.String(),
			}).Warn("Negative balance detected")
		}
	}

	a.log.WithFields(logrus.Fields{
		"users":     report.Users,
		"anomalies": report.Anomalies,
		"negative":  len(report.Negative),
	}).Info("Balance audit finished")
	return report, nil
}
