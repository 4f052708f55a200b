package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/db/models"
	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/migrate"
)

// setupSharedLedgerDB opens a file-backed database with a real connection
// pool. Writers take the database lock at BEGIN and wait on each other.
func setupSharedLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_journal_mode=WAL",
		filepath.Join(t.TempDir(), "ledger.db"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migrate.AutoMigrateModels(conn))
	return conn
}

func TestChargePackage_ConcurrentDistinctKeysAllPost(t *testing.T) {
	env := newTestEnvOn(t, setupSharedLedgerDB(t), testLedgerConfig(), nil)
	ctx := context.Background()

	const workers = 16
	amount := decimal.RequireFromString("2.5")
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := env.svc.ChargePackage(ctx, charge(61, amount.String(), fmt.Sprintf("listing-100-save-%d", i)))
			return err
		})
	}
	require.NoError(t, g.Wait())

	want := amount.Mul(decimal.NewFromInt(workers)).Neg()
	got := env.balance(t, 61, "USD")
	assert.True(t, got.Equal(want), "balance %s want %s", got, want)
	assert.Equal(t, int64(workers), env.countEntries(t))
	assert.Equal(t, int64(workers), env.countOutbox(t))

	account, err := env.svc.GetAccount(ctx, 61, "USD")
	require.NoError(t, err)
	report, err := env.svc.VerifyBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "drift %s", report.Drift)
}

// contendedRepo fails the first n lock attempts with a lock timeout.
type contendedRepo struct {
	Repository
	remaining *atomic.Int32
}

func (r *contendedRepo) WithTx(tx *gorm.DB) Repository {
	return &contendedRepo{Repository: r.Repository.WithTx(tx), remaining: r.remaining}
}

func (r *contendedRepo) LockAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if r.remaining.Add(-1) >= 0 {
		return nil, &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}
	}
	return r.Repository.LockAccount(ctx, accountID)
}

func TestChargePackage_ContendedChargesRetryAndPostOnce(t *testing.T) {
	remaining := &atomic.Int32{}
	env := newTestEnv(t, testLedgerConfig(), func(inner Repository) Repository {
		return &contendedRepo{Repository: inner, remaining: remaining}
	})
	env.svc.sleep = func(context.Context, time.Duration) error { return nil }
	ctx := context.Background()

	const charges = 5
	for i := 0; i < charges; i++ {
		remaining.Store(2)
		_, err := env.svc.ChargePackage(ctx, charge(62, "3", fmt.Sprintf("contended-%d", i)))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(charges), env.countEntries(t))
	assert.True(t, env.balance(t, 62, "USD").Equal(decimal.NewFromInt(-3*charges)))
	assert.Equal(t, float64(2*charges), env.counter(t, "carz_ledger_lock_retries_total", nil))
}

func TestVerifyBalance_FractionalCreditsStayConsistent(t *testing.T) {
	env := newTestEnv(t, testLedgerConfig(), nil)
	ctx := context.Background()

	for i, amount := range []string{"0.1", "0.2"} {
		_, err := env.svc.CreditAccount(ctx, PostEntryInput{
			UserID:         63,
			Amount:         decimal.RequireFromString(amount),
			IdempotencyKey: fmt.Sprintf("topup-%d", i),
		})
		require.NoError(t, err)
	}

	account, err := env.svc.GetAccount(ctx, 63, "USD")
	require.NoError(t, err)
	assert.True(t, account.AvailableBalance.Equal(decimal.RequireFromString("0.3")), "balance %s", account.AvailableBalance)

	report, err := env.svc.VerifyBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, report.LedgerSum.Equal(decimal.RequireFromString("0.3")), "sum %s", report.LedgerSum)
	assert.True(t, report.Consistent(), "drift %s", report.Drift)
}

// recordingRepo notes which account reads happen inside a transaction.
type recordingRepo struct {
	Repository
	inTx  bool
	mu    *sync.Mutex
	calls *[]string
}

func (r *recordingRepo) WithTx(tx *gorm.DB) Repository {
	return &recordingRepo{Repository: r.Repository.WithTx(tx), inTx: true, mu: r.mu, calls: r.calls}
}

func (r *recordingRepo) record(call string) {
	if r.inTx {
		call += "(tx)"
	}
	r.mu.Lock()
	*r.calls = append(*r.calls, call)
	r.mu.Unlock()
}

func (r *recordingRepo) LockAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	r.record("lock")
	return r.Repository.LockAccount(ctx, accountID)
}

func (r *recordingRepo) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	r.record("find")
	return r.Repository.FindAccountByID(ctx, accountID)
}

func (r *recordingRepo) SumPosted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	r.record("sum")
	return r.Repository.SumPosted(ctx, accountID)
}

func TestVerifyBalance_ReadsUnderAccountLock(t *testing.T) {
	calls := []string{}
	env := newTestEnv(t, testLedgerConfig(), func(inner Repository) Repository {
		return &recordingRepo{Repository: inner, mu: &sync.Mutex{}, calls: &calls}
	})
	ctx := context.Background()

	entry, err := env.svc.ChargePackage(ctx, charge(64, "7", "verify-lock"))
	require.NoError(t, err)
	calls = calls[:0]

	_, err = env.svc.VerifyBalance(ctx, entry.AccountID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock(tx)", "sum(tx)"}, calls)
}

func TestVerifyBalance_BusyAccountIsRetryable(t *testing.T) {
	attempts := &atomic.Int32{}
	env := newTestEnv(t, testLedgerConfig(), func(inner Repository) Repository {
		return &busyRepo{Repository: inner, attempts: attempts}
	})

	_, err := env.svc.VerifyBalance(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)
	assert.True(t, pkgerrors.IsRetryable(err))
}
