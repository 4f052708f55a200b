package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carzavenue/backend/pkg/enums"
)

// LedgerEntryPostedEvent is emitted in the same transaction that posts an entry.
type LedgerEntryPostedEvent struct {
	EntryID        uuid.UUID             `json:"entry_id"`
	AccountID      uuid.UUID             `json:"account_id"`
	UserID         int64                 `json:"user_id"`
	Currency       string                `json:"currency"`
	Direction      enums.LedgerDirection `json:"direction"`
	Type           enums.LedgerEntryType `json:"type"`
	Amount         decimal.Decimal       `json:"amount"`
	BalanceAfter   decimal.Decimal       `json:"balance_after"`
	ReferenceType  string                `json:"reference_type,omitempty"`
	ReferenceID    string                `json:"reference_id,omitempty"`
	IdempotencyKey string                `json:"idempotency_key"`
	PostedAt       time.Time             `json:"posted_at"`
}

// PaymentConfigUpdatedEvent announces a gateway configuration change. Keys are
// never included.
type PaymentConfigUpdatedEvent struct {
	ConfigID  uuid.UUID         `json:"config_id"`
	Mode      enums.PaymentMode `json:"mode"`
	APIURL    string            `json:"api_url"`
	UpdatedAt time.Time         `json:"updated_at"`
}
