package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/carzavenue/backend/internal/ledger"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/metrics"
)

const defaultReconcileBatchSize = 200

type accountLister interface {
	ListAccountsAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Account, error)
}

type balanceVerifier interface {
	VerifyBalance(ctx context.Context, accountID uuid.UUID) (ledger.BalanceReport, error)
}

type BalanceReconcileJobParams struct {
	Logger    *logger.Logger
	Accounts  accountLister
	Verifier  balanceVerifier
	Metrics   *metrics.LedgerMetrics
	BatchSize int
}

// NewBalanceReconcileJob checks every account's materialized balance against
// the sum of its posted entries. Drift is logged and exported; balances are
// never corrected automatically.
func NewBalanceReconcileJob(params BalanceReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account lister required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("balance verifier required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	return &balanceReconcileJob{
		logg:      params.Logger,
		accounts:  params.Accounts,
		verifier:  params.Verifier,
		metrics:   params.Metrics,
		batchSize: batch,
	}, nil
}

type balanceReconcileJob struct {
	logg      *logger.Logger
	accounts  accountLister
	verifier  balanceVerifier
	metrics   *metrics.LedgerMetrics
	batchSize int
}

func (j *balanceReconcileJob) Name() string { return "ledger-balance-reconcile" }

func (j *balanceReconcileJob) Run(ctx context.Context) error {
	var (
		errs    error
		after   uuid.UUID
		checked int
		drifted int
	)
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		accounts, err := j.accounts.ListAccountsAfter(ctx, after, j.batchSize)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list accounts: %w", err))
		}
		for _, account := range accounts {
			report, err := j.verifier.VerifyBalance(ctx, account.ID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("verify account %s: %w", account.ID, err))
				continue
			}
			checked++
			if report.Consistent() {
				continue
			}
			drifted++
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"account_id":   report.AccountID.String(),
				"user_id":      report.UserID,
				"currency":     report.Currency,
				"materialized": report.Materialized.String(),
				"ledger_sum":   report.LedgerSum.String(),
				"drift":        report.Drift.String(),
			}), "ledger.balance_drift")
		}
		if len(accounts) < j.batchSize {
			break
		}
		after = accounts[len(accounts)-1].ID
	}

	j.metrics.SetDriftAccounts(drifted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"accounts_checked": checked,
		"accounts_drifted": drifted,
		"verify_failures":  len(multierr.Errors(errs)),
	}), "ledger balance reconciliation complete")
	return errs
}
