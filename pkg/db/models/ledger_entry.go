package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/enums"
)

// LedgerEntry records an immutable balance-affecting event against an account.
// Amount is always a magnitude; Direction carries the sign.
type LedgerEntry struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	AccountID      uuid.UUID               `gorm:"column:account_id;type:uuid;not null;index:idx_ledger_entries_account_created,priority:1"`
	Direction      enums.LedgerDirection   `gorm:"column:direction;type:varchar(8);not null"`
	Amount         decimal.Decimal         `gorm:"column:amount;type:numeric(19,4);not null"`
	Type           enums.LedgerEntryType   `gorm:"column:type;type:varchar(32);not null"`
	ReferenceType  string                  `gorm:"column:reference_type;type:varchar(64)"`
	ReferenceID    string                  `gorm:"column:reference_id;type:varchar(128)"`
	Status         enums.LedgerEntryStatus `gorm:"column:status;type:varchar(16);not null;default:'POSTED'"`
	IdempotencyKey string                  `gorm:"column:idempotency_key;type:varchar(128);not null;uniqueIndex:ux_ledger_entries_idempotency_key"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime;index:idx_ledger_entries_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// BeforeCreate assigns the synthetic id when the caller did not.
func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// SignedAmount returns the amount with the direction applied.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Direction == enums.LedgerDirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
