package paymentconfig

import (
	"context"

	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/db/models"
)

// Repository persists the payment_configs singleton.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSingleton(ctx context.Context) (*models.PaymentConfig, error)
	Create(ctx context.Context, cfg *models.PaymentConfig) error
	Save(ctx context.Context, cfg *models.PaymentConfig) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment config repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindSingleton(ctx context.Context) (*models.PaymentConfig, error) {
	var cfg models.PaymentConfig
	if err := r.db.WithContext(ctx).
		Where("singleton = ?", models.PaymentConfigSingletonKey).
		First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) Create(ctx context.Context, cfg *models.PaymentConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *repository) Save(ctx context.Context, cfg *models.PaymentConfig) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentConfig{}).
		Where("id = ?", cfg.ID).
		UpdateColumns(map[string]any{
			"api_url":    cfg.APIURL,
			"test_key":   cfg.TestKey,
			"live_key":   cfg.LiveKey,
			"mode":       cfg.Mode,
			"updated_at": cfg.UpdatedAt,
		}).Error
}
