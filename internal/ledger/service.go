package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/config"
	"github.com/carzavenue/backend/pkg/db"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/metrics"
	"github.com/carzavenue/backend/pkg/outbox"
	"github.com/carzavenue/backend/pkg/outbox/payloads"
	"github.com/carzavenue/backend/pkg/pagination"
)

type txRunner interface {
	WithLockTimeoutTx(ctx context.Context, timeout time.Duration, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the ledger engine: the only writer of accounts and ledger entries.
type Service interface {
	ChargePackage(ctx context.Context, input PostEntryInput) (*models.LedgerEntry, error)
	CreditAccount(ctx context.Context, input PostEntryInput) (*models.LedgerEntry, error)
	GetOrCreateAccount(ctx context.Context, userID int64, currency string) (*models.Account, error)
	GetAccount(ctx context.Context, userID int64, currency string) (*models.Account, error)
	NormalizeCurrency(input string) string
	ListAccounts(ctx context.Context, userID int64) ([]AccountView, error)
	ListLedger(ctx context.Context, params ListLedgerParams) (LedgerPage, error)
	VerifyBalance(ctx context.Context, accountID uuid.UUID) (BalanceReport, error)
}

// ServiceParams groups dependencies for the ledger engine.
type ServiceParams struct {
	Repo    Repository
	DB      txRunner
	Outbox  outboxPublisher
	Config  config.LedgerConfig
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	cfg     config.LedgerConfig
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

var (
	// errDuplicateKey marks a rollback caused by a concurrent insert of the same idempotency key.
	errDuplicateKey = errors.New("ledger entry idempotency key already used")
	// errAccountRace marks an account insert that lost to a concurrent creator.
	errAccountRace = errors.New("account created concurrently")
)

// NewService builds the ledger engine with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if strings.TrimSpace(params.Config.DefaultCurrency) == "" {
		return nil, fmt.Errorf("default currency required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.DB,
		outbox:  params.Outbox,
		cfg:     params.Config,
		logg:    logg,
		metrics: params.Metrics,
		now:     now,
		sleep:   sleepContext,
	}, nil
}

// NormalizeCurrency trims and uppercases the input; blank input resolves to
// the configured default currency.
func (s *service) NormalizeCurrency(input string) string {
	normalized := strings.ToUpper(strings.TrimSpace(input))
	if normalized == "" {
		return strings.ToUpper(strings.TrimSpace(s.cfg.DefaultCurrency))
	}
	return normalized
}

// ChargePackage debits the user's account for a paid package. A key that was
// already used returns the original entry unchanged.
func (s *service) ChargePackage(ctx context.Context, input PostEntryInput) (*models.LedgerEntry, error) {
	input.EntryType = enums.LedgerEntryTypePackageCharge
	return s.post(ctx, enums.LedgerDirectionDebit, input)
}

// CreditAccount posts a CREDIT entry. EntryType defaults to TOPUP.
func (s *service) CreditAccount(ctx context.Context, input PostEntryInput) (*models.LedgerEntry, error) {
	if input.EntryType == "" {
		input.EntryType = enums.LedgerEntryTypeTopUp
	}
	if !input.EntryType.IsValid() || input.EntryType == enums.LedgerEntryTypePackageCharge {
		s.metrics.IncFailed(metrics.LedgerFailureValidation)
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "entry type %q cannot be credited", input.EntryType)
	}
	return s.post(ctx, enums.LedgerDirectionCredit, input)
}

func (s *service) post(ctx context.Context, direction enums.LedgerDirection, input PostEntryInput) (*models.LedgerEntry, error) {
	started := s.now()
	input.Currency = s.NormalizeCurrency(input.Currency)
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if err := validatePostInput(input); err != nil {
		s.metrics.IncFailed(metrics.LedgerFailureValidation)
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":         input.UserID,
		"currency":        input.Currency,
		"direction":       direction,
		"entry_type":      input.EntryType,
		"idempotency_key": input.IdempotencyKey,
	})

	existing, err := s.findEntryByKey(ctx, s.repo, input.IdempotencyKey)
	if err != nil {
		s.metrics.IncFailed(metrics.LedgerFailureInternal)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup ledger entry")
	}
	if existing != nil {
		s.replayed(ctx, existing)
		return existing, nil
	}

	account, err := s.GetOrCreateAccount(ctx, input.UserID, input.Currency)
	if err != nil {
		s.metrics.IncFailed(metrics.LedgerFailureInternal)
		return nil, err
	}
	ctx = s.logg.WithAccountID(ctx, account.ID.String())

	entry, replayed, err := s.postWithRetry(ctx, account, direction, input)
	if err != nil {
		return nil, err
	}
	if replayed {
		s.replayed(ctx, entry)
		return entry, nil
	}

	s.metrics.IncPosted(string(entry.Type), string(direction))
	s.metrics.ObservePost(string(direction), s.now().Sub(started))
	s.logg.Info(s.logg.WithField(ctx, "entry_id", entry.ID.String()), "ledger.entry_posted")
	return entry, nil
}

func validatePostInput(input PostEntryInput) error {
	if input.UserID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Currency == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !input.Amount.Equal(input.Amount.Truncate(AmountScale)) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "amount supports at most %d decimal places", AmountScale)
	}
	if input.IdempotencyKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if len(input.IdempotencyKey) > MaxIdempotencyKeyLength {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "idempotency key must be at most %d characters", MaxIdempotencyKeyLength)
	}
	return nil
}

func (s *service) replayed(ctx context.Context, entry *models.LedgerEntry) {
	s.metrics.IncReplayed(string(entry.Type))
	s.logg.Info(s.logg.WithField(ctx, "entry_id", entry.ID.String()), "ledger.entry_replayed")
}

// postWithRetry runs the posting transaction, retrying lock contention with a
// linear backoff. A lost idempotency race resolves to the winning entry.
func (s *service) postWithRetry(ctx context.Context, account *models.Account, direction enums.LedgerDirection, input PostEntryInput) (*models.LedgerEntry, bool, error) {
	for attempt := 0; ; attempt++ {
		entry, replayed, err := s.postOnce(ctx, account, direction, input)
		switch {
		case err == nil:
			return entry, replayed, nil
		case errors.Is(err, errDuplicateKey):
			entry, err := s.resolveDuplicate(ctx, input.IdempotencyKey)
			if err != nil {
				s.metrics.IncFailed(metrics.LedgerFailureInternal)
				return nil, false, err
			}
			return entry, true, nil
		case pkgerrors.As(err) != nil:
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				s.metrics.IncFailed(metrics.LedgerFailureInsufficientFunds)
			} else {
				s.metrics.IncFailed(metrics.LedgerFailureInternal)
			}
			return nil, false, err
		case !db.IsLockContention(err):
			s.metrics.IncFailed(metrics.LedgerFailureInternal)
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "post ledger entry")
		}

		if attempt >= s.cfg.LockRetries {
			s.metrics.IncFailed(metrics.LedgerFailureContention)
			s.logg.Warn(ctx, "ledger.lock_retries_exhausted")
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "account is busy, retry with the same idempotency key").
				WithDetails(map[string]any{"attempts": attempt + 1})
		}

		s.metrics.IncLockRetry()
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt+1), "ledger.lock_retry")
		if err := s.sleep(ctx, s.cfg.LockRetryBackoff*time.Duration(attempt+1)); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger retry interrupted")
		}
	}
}

// postOnce is one attempt of the posting transaction: lock the account, re-check
// the key, insert the entry, move the balance, queue the outbox event.
func (s *service) postOnce(ctx context.Context, account *models.Account, direction enums.LedgerDirection, input PostEntryInput) (*models.LedgerEntry, bool, error) {
	var (
		result   *models.LedgerEntry
		replayed bool
	)
	err := s.tx.WithLockTimeoutTx(ctx, s.cfg.LockTimeout, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.LockAccount(ctx, account.ID)
		if err != nil {
			return err
		}

		existing, err := s.findEntryByKey(ctx, repo, input.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result, replayed = existing, true
			return nil
		}

		balance := locked.AvailableBalance.Add(input.Amount)
		if direction == enums.LedgerDirectionDebit {
			balance = locked.AvailableBalance.Sub(input.Amount)
			if !s.cfg.AllowNegativeBalance && balance.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient funds").
					WithDetails(map[string]any{
						"available": locked.AvailableBalance.String(),
						"requested": input.Amount.String(),
					})
			}
		}

		now := s.now().UTC()
		entry := &models.LedgerEntry{
			ID:             uuid.New(),
			AccountID:      locked.ID,
			Direction:      direction,
			Amount:         input.Amount,
			Type:           input.EntryType,
			ReferenceType:  strings.TrimSpace(input.ReferenceType),
			ReferenceID:    strings.TrimSpace(input.ReferenceID),
			Status:         enums.LedgerEntryStatusPosted,
			IdempotencyKey: input.IdempotencyKey,
			CreatedAt:      now,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			if db.IsUniqueViolation(err, idempotencyKeyConstraint) {
				return errDuplicateKey
			}
			return err
		}
		if err := repo.UpdateBalance(ctx, locked.ID, balance, now); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLedgerEntryPosted,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         input.Actor,
			OccurredAt:    now,
			Data: payloads.LedgerEntryPostedEvent{
				EntryID:        entry.ID,
				AccountID:      locked.ID,
				UserID:         locked.UserID,
				Currency:       locked.Currency,
				Direction:      direction,
				Type:           entry.Type,
				Amount:         entry.Amount,
				BalanceAfter:   balance,
				ReferenceType:  entry.ReferenceType,
				ReferenceID:    entry.ReferenceID,
				IdempotencyKey: entry.IdempotencyKey,
				PostedAt:       now,
			},
		}); err != nil {
			return fmt.Errorf("emit ledger event: %w", err)
		}

		result = entry
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, replayed, nil
}

// resolveDuplicate re-reads the entry that won a concurrent insert of the same
// key. It runs after the losing transaction rolled back.
func (s *service) resolveDuplicate(ctx context.Context, key string) (*models.LedgerEntry, error) {
	entry, err := s.findEntryByKey(ctx, s.repo, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload ledger entry")
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency key conflict without a stored entry")
	}
	return entry, nil
}

func (s *service) findEntryByKey(ctx context.Context, repo Repository, key string) (*models.LedgerEntry, error) {
	entry, err := repo.FindEntryByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// GetOrCreateAccount returns the (user, currency) account, inserting it on
// first use. Concurrent creators converge on the row that won the unique index.
func (s *service) GetOrCreateAccount(ctx context.Context, userID int64, currency string) (*models.Account, error) {
	currency = s.NormalizeCurrency(currency)
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	account, err := s.repo.FindAccount(ctx, userID, currency)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}

	account, err = s.createAccount(ctx, userID, currency)
	if errors.Is(err, errAccountRace) {
		account, err = s.repo.FindAccount(ctx, userID, currency)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create account")
	}
	return account, nil
}

func (s *service) createAccount(ctx context.Context, userID int64, currency string) (*models.Account, error) {
	now := s.now().UTC()
	account := &models.Account{
		ID:               uuid.New(),
		UserID:           userID,
		Currency:         currency,
		AvailableBalance: decimal.Zero,
		HoldBalance:      decimal.Zero,
		Status:           enums.AccountStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if db.IsUniqueViolation(err, accountConstraint) {
			return nil, errAccountRace
		}
		return nil, err
	}
	s.logg.Info(s.logg.WithAccountID(ctx, account.ID.String()), "ledger.account_created")
	return account, nil
}

// GetAccount looks up an existing account without creating one.
func (s *service) GetAccount(ctx context.Context, userID int64, currency string) (*models.Account, error) {
	account, err := s.repo.FindAccount(ctx, userID, s.NormalizeCurrency(currency))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}
	return account, nil
}

func (s *service) ListAccounts(ctx context.Context, userID int64) ([]AccountView, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	accounts, err := s.repo.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list accounts")
	}
	views := make([]AccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, NewAccountView(account))
	}
	return views, nil
}

// ListLedger returns the user's entries newest first, keyset-paginated on
// (created_at, id).
func (s *service) ListLedger(ctx context.Context, params ListLedgerParams) (LedgerPage, error) {
	if params.UserID <= 0 {
		return LedgerPage{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if params.Type != nil && !params.Type.IsValid() {
		return LedgerPage{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid entry type %q", *params.Type)
	}
	if params.Direction != nil && !params.Direction.IsValid() {
		return LedgerPage{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid direction %q", *params.Direction)
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		return LedgerPage{}, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return LedgerPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filter := entryFilter{
		UserID:    params.UserID,
		Type:      params.Type,
		Direction: params.Direction,
		From:      params.From,
		To:        params.To,
	}
	if strings.TrimSpace(params.Currency) != "" {
		filter.Currency = s.NormalizeCurrency(params.Currency)
	}

	rows, err := s.repo.ListEntries(ctx, filter, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return LedgerPage{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	page := pagination.BuildPage(rows, params.Limit, func(entry models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: entry.CreatedAt, ID: entry.ID}
	})

	items := make([]LedgerEntryView, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, NewLedgerEntryView(entry))
	}
	return LedgerPage{Items: items, NextCursor: page.NextCursor}, nil
}

// VerifyBalance compares the materialized balance with Σ CREDIT − Σ DEBIT.
// It only reports; balances are never rewritten here.
func (s *service) VerifyBalance(ctx context.Context, accountID uuid.UUID) (BalanceReport, error) {
	if accountID == uuid.Nil {
		return BalanceReport{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	// The balance and the sum are read under the account lock in one
	// transaction, so a concurrent posting cannot land between the two reads.
	var report BalanceReport
	err := s.tx.WithLockTimeoutTx(ctx, s.cfg.LockTimeout, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := repo.SumPosted(ctx, accountID)
		if err != nil {
			return fmt.Errorf("sum ledger entries: %w", err)
		}
		report = BalanceReport{
			AccountID:    account.ID,
			UserID:       account.UserID,
			Currency:     account.Currency,
			Materialized: account.AvailableBalance,
			LedgerSum:    sum,
			Drift:        account.AvailableBalance.Sub(sum),
		}
		return nil
	})
	switch {
	case err == nil:
		return report, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return BalanceReport{}, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	case db.IsLockContention(err):
		return BalanceReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "account is busy")
	}
	return BalanceReport{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify balance")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
