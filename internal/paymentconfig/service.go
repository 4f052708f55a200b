package paymentconfig

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/db"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/outbox"
	"github.com/carzavenue/backend/pkg/outbox/payloads"
)

const singletonConstraint = "ux_payment_configs_singleton"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor identifies the staff member changing the configuration.
type Actor struct {
	UserID int64
	Role   enums.UserRole
}

// Service reads and administers the payment gateway configuration.
type Service interface {
	GetOrCreate(ctx context.Context) (View, error)
	Update(ctx context.Context, input UpdateInput, actor Actor) (View, error)
}

// ServiceParams groups dependencies for the payment config service.
type ServiceParams struct {
	Repo     Repository
	DB       txRunner
	Outbox   outboxPublisher
	Cache    cacheStore
	CacheTTL time.Duration
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	cache  *cache
	logg   *logger.Logger
	now    func() time.Time
}

// NewService constructs the payment config service. Cache is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment config repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
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
		repo:   params.Repo,
		tx:     params.DB,
		outbox: params.Outbox,
		cache:  &cache{store: params.Cache, ttl: params.CacheTTL, logg: logg},
		logg:   logg,
		now:    now,
	}, nil
}

// GetOrCreate returns the singleton, creating it in TEST mode with empty
// values on first use.
func (s *service) GetOrCreate(ctx context.Context) (View, error) {
	if view, ok := s.cache.get(ctx); ok {
		return view, nil
	}

	cfg, err := s.loadOrCreate(ctx, s.repo)
	if err != nil {
		return View{}, err
	}
	view := NewView(*cfg)
	s.cache.set(ctx, view)
	return view, nil
}

func (s *service) loadOrCreate(ctx context.Context, repo Repository) (*models.PaymentConfig, error) {
	cfg, err := repo.FindSingleton(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment config")
	}

	cfg = &models.PaymentConfig{
		ID:        uuid.New(),
		Singleton: models.PaymentConfigSingletonKey,
		Mode:      enums.PaymentModeTest,
		UpdatedAt: s.now().UTC(),
	}
	if err := repo.Create(ctx, cfg); err != nil {
		if !db.IsUniqueViolation(err, singletonConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment config")
		}
		cfg, err = repo.FindSingleton(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment config")
		}
		return cfg, nil
	}
	s.logg.Info(ctx, "payment config initialized")
	return cfg, nil
}

// Update overwrites the configuration. Only administrators may change it.
func (s *service) Update(ctx context.Context, input UpdateInput, actor Actor) (View, error) {
	if actor.Role != enums.UserRoleAdministrator {
		return View{}, pkgerrors.New(pkgerrors.CodeForbidden, "administrator privileges required")
	}
	mode, err := enums.ParsePaymentMode(input.Mode)
	if err != nil {
		return View{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mode must be TEST or LIVE")
	}
	apiURL := strings.TrimSpace(input.APIURL)
	if apiURL != "" {
		parsed, err := url.Parse(apiURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return View{}, pkgerrors.New(pkgerrors.CodeValidation, "apiUrl must be an absolute URL")
		}
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"actor_user_id": actor.UserID, "mode": mode})

	// A lost creation race aborts a postgres transaction; create before opening one.
	if _, err := s.loadOrCreate(ctx, s.repo); err != nil {
		return View{}, err
	}

	var updated models.PaymentConfig
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cfg, err := repo.FindSingleton(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment config")
		}

		cfg.APIURL = apiURL
		cfg.TestKey = strings.TrimSpace(input.TestKey)
		cfg.LiveKey = strings.TrimSpace(input.LiveKey)
		cfg.Mode = mode
		cfg.UpdatedAt = s.now().UTC()
		if err := repo.Save(ctx, cfg); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment config")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentConfigUpdated,
			AggregateType: enums.AggregatePaymentConfig,
			AggregateID:   cfg.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			OccurredAt:    cfg.UpdatedAt,
			Data: payloads.PaymentConfigUpdatedEvent{
				ConfigID:  cfg.ID,
				Mode:      cfg.Mode,
				APIURL:    cfg.APIURL,
				UpdatedAt: cfg.UpdatedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment config event")
		}
		updated = *cfg
		return nil
	})
	if err != nil {
		return View{}, err
	}

	view := NewView(updated)
	s.cache.refresh(ctx, view)
	s.logg.Info(ctx, "payment config updated")
	return view, nil
}
