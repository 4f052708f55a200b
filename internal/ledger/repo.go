package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	"github.com/carzavenue/backend/pkg/pagination"
)

// Repository persists accounts and ledger entries. Entries are append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindAccount(ctx context.Context, userID int64, currency string) (*models.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	LockAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	UpdateBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, now time.Time) error
	ListAccountsByUser(ctx context.Context, userID int64) ([]models.Account, error)
	ListAccountsAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Account, error)

	FindEntryByKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListEntries(ctx context.Context, filter entryFilter, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error)
	SumPosted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindAccount(ctx context.Context, userID int64, currency string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// LockAccount reads the account row with SELECT ... FOR UPDATE. sqlite has no
// row locks; its single writer connection gives the same serialization.
func (r *repository) LockAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.Account
	if err := query.Where("id = ?", accountID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumns(map[string]any{
			"available_balance": balance,
			"updated_at":        now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListAccountsByUser(ctx context.Context, userID int64) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("currency ASC").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAccountsAfter walks every account in id order, for batch jobs.
func (r *repository) ListAccountsAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Account, error) {
	query := r.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if afterID != uuid.Nil {
		query = query.Where("id > ?", afterID)
	}
	var accounts []models.Account
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) FindEntryByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, filter entryFilter, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("ledger_entries.*").
		Joins("JOIN accounts ON accounts.id = ledger_entries.account_id").
		Where("accounts.user_id = ?", filter.UserID)

	if filter.Currency != "" {
		query = query.Where("accounts.currency = ?", filter.Currency)
	}
	if filter.Type != nil {
		query = query.Where("ledger_entries.type = ?", *filter.Type)
	}
	if filter.Direction != nil {
		query = query.Where("ledger_entries.direction = ?", *filter.Direction)
	}
	if filter.From != nil {
		query = query.Where("ledger_entries.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("ledger_entries.created_at < ?", filter.To.UTC())
	}
	if cursor != nil {
		query = query.Where("(ledger_entries.created_at, ledger_entries.id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var entries []models.LedgerEntry
	if err := query.
		Order("ledger_entries.created_at DESC, ledger_entries.id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

type directionTotal struct {
	Direction enums.LedgerDirection
	Total     decimal.Decimal
}

// SumPosted returns Σ CREDIT − Σ DEBIT over the account's posted entries.
// Postgres sums exact numerics in SQL. SQLite stores numeric columns as REAL,
// so there each entry is read back and summed as a decimal instead.
func (r *repository) SumPosted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("account_id = ? AND status = ?", accountID, enums.LedgerEntryStatusPosted)

	var totals []directionTotal
	var err error
	if query.Dialector.Name() == "postgres" {
		err = query.
			Select("direction, COALESCE(SUM(amount), 0) AS total").
			Group("direction").
			Scan(&totals).Error
	} else {
		err = query.
			Select("direction, amount AS total").
			Scan(&totals).Error
	}
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, row := range totals {
		switch row.Direction {
		case enums.LedgerDirectionCredit:
			sum = sum.Add(row.Total)
		case enums.LedgerDirectionDebit:
			sum = sum.Sub(row.Total)
		}
	}
	return sum, nil
}
