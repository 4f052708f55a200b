package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/enums"
)

// Account holds the materialized balance for one (user, currency) pair.
type Account struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           int64               `gorm:"column:user_id;not null;uniqueIndex:ux_accounts_user_currency,priority:1"`
	Currency         string              `gorm:"column:currency;type:varchar(16);not null;uniqueIndex:ux_accounts_user_currency,priority:2"`
	AvailableBalance decimal.Decimal     `gorm:"column:available_balance;type:numeric(19,4);not null;default:0"`
	HoldBalance      decimal.Decimal     `gorm:"column:hold_balance;type:numeric(19,4);not null;default:0"`
	Status           enums.AccountStatus `gorm:"column:status;type:varchar(16);not null;default:'ACTIVE'"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }

// BeforeCreate assigns the synthetic id when the caller did not.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
