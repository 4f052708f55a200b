package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	"github.com/carzavenue/backend/pkg/outbox"
	"github.com/carzavenue/backend/pkg/types"
)

const (
	// MaxIdempotencyKeyLength matches the ledger_entries.idempotency_key column.
	MaxIdempotencyKeyLength = 128
	// AmountScale is the fractional precision of numeric(19,4) money columns.
	AmountScale = 4

	idempotencyKeyConstraint = "ux_ledger_entries_idempotency_key"
	accountConstraint        = "ux_accounts_user_currency"
)

// PostEntryInput carries everything needed to post one balance-affecting entry.
type PostEntryInput struct {
	UserID         int64
	Currency       string
	Amount         decimal.Decimal
	EntryType      enums.LedgerEntryType
	ReferenceType  string
	ReferenceID    string
	IdempotencyKey string
	Actor          *outbox.ActorRef
}

// ListLedgerParams filters a user's ledger history.
type ListLedgerParams struct {
	UserID    int64
	Currency  string
	Type      *enums.LedgerEntryType
	Direction *enums.LedgerDirection
	From      *time.Time
	To        *time.Time
	Limit     int
	Cursor    string
}

type entryFilter struct {
	UserID    int64
	Currency  string
	Type      *enums.LedgerEntryType
	Direction *enums.LedgerDirection
	From      *time.Time
	To        *time.Time
}

// AccountView is the API representation of an account.
type AccountView struct {
	ID               uuid.UUID           `json:"id"`
	Currency         string              `json:"currency"`
	Status           enums.AccountStatus `json:"status"`
	AvailableBalance decimal.Decimal     `json:"availableBalance"`
	HoldBalance      decimal.Decimal     `json:"holdBalance"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// LedgerEntryView is the API representation of a ledger entry.
type LedgerEntryView struct {
	ID             uuid.UUID               `json:"id"`
	AccountID      uuid.UUID               `json:"accountId"`
	Direction      enums.LedgerDirection   `json:"direction"`
	Amount         decimal.Decimal         `json:"amount"`
	Type           enums.LedgerEntryType   `json:"type"`
	ReferenceType  string                  `json:"referenceType,omitempty"`
	ReferenceID    string                  `json:"referenceId,omitempty"`
	Status         enums.LedgerEntryStatus `json:"status"`
	IdempotencyKey string                  `json:"idempotencyKey"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// LedgerPage is one page of ledger history, newest first.
type LedgerPage = types.ListPage[LedgerEntryView]

// BalanceReport compares the materialized balance of an account with the sum
// of its posted entries.
type BalanceReport struct {
	AccountID    uuid.UUID       `json:"accountId"`
	UserID       int64           `json:"userId"`
	Currency     string          `json:"currency"`
	Materialized decimal.Decimal `json:"materialized"`
	LedgerSum    decimal.Decimal `json:"ledgerSum"`
	Drift        decimal.Decimal `json:"drift"`
}

// Consistent reports whether the account balance matches its ledger.
func (r BalanceReport) Consistent() bool {
	return r.Drift.IsZero()
}

func NewAccountView(account models.Account) AccountView {
	return AccountView{
		ID:               account.ID,
		Currency:         account.Currency,
		Status:           account.Status,
		AvailableBalance: account.AvailableBalance,
		HoldBalance:      account.HoldBalance,
		CreatedAt:        account.CreatedAt,
		UpdatedAt:        account.UpdatedAt,
	}
}

func NewLedgerEntryView(entry models.LedgerEntry) LedgerEntryView {
	return LedgerEntryView{
		ID:             entry.ID,
		AccountID:      entry.AccountID,
		Direction:      entry.Direction,
		Amount:         entry.Amount,
		Type:           entry.Type,
		ReferenceType:  entry.ReferenceType,
		ReferenceID:    entry.ReferenceID,
		Status:         entry.Status,
		IdempotencyKey: entry.IdempotencyKey,
		CreatedAt:      entry.CreatedAt,
	}
}
