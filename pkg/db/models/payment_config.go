package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/enums"
)

// PaymentConfigSingletonKey is the natural key of the only payment_configs row.
const PaymentConfigSingletonKey = "default"

// PaymentConfig stores gateway credentials consumed by payment-gateway callers.
type PaymentConfig struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Singleton string            `gorm:"column:singleton;type:varchar(16);not null;uniqueIndex:ux_payment_configs_singleton"`
	APIURL    string            `gorm:"column:api_url;not null;default:''"`
	TestKey   string            `gorm:"column:test_key;not null;default:''"`
	LiveKey   string            `gorm:"column:live_key;not null;default:''"`
	Mode      enums.PaymentMode `gorm:"column:mode;type:varchar(8);not null;default:'TEST'"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentConfig) TableName() string { return "payment_configs" }

// BeforeCreate assigns the synthetic id when the caller did not.
func (p *PaymentConfig) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
