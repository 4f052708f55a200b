package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/pkg/config"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/metrics"
	"github.com/carzavenue/backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	maxBackoff     = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	CountPending(ctx context.Context) (int64, error)
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// ServiceParams groups the outbox publisher dependencies. Metrics and
// PublisherFactory are optional.
type ServiceParams struct {
	Outbox           config.OutboxConfig
	InstanceID       string
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	DLQRepository    dlqRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.OutboxMetrics
}

// Service drains the outbox table onto pubsub topics.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	pubsub           pubSubClient
	repo             outboxRepository
	dlq              dlqRepository
	registry         registryResolver
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	instanceID       string
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = topicPublishers(params.PubSub)
	}

	batch := params.Outbox.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := params.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		pubsub:           params.PubSub,
		repo:             params.Repository,
		dlq:              params.DLQRepository,
		registry:         params.Registry,
		publisherFactory: factory,
		metrics:          params.Metrics,
		instanceID:       params.InstanceID,
		batchSize:        batch,
		maxAttempts:      maxAttempts,
		pollInterval:     params.Outbox.PollInterval(),
		now:              time.Now,
	}, nil
}

// Run polls until ctx is canceled. Failed batches back off exponentially up
// to maxBackoff; a full batch polls again immediately.
func (s *Service) Run(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	wait := s.pollInterval
	for {
		if ctx.Err() != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		}

		claimed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = min(wait*2, maxBackoff)
		case claimed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}

		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch claims up to batchSize rows inside one transaction and
// dispatches each. It reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.refreshPending(ctx)
	}
	return claimed, err
}

// dispatch publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures are recorded on the row.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	ctx = s.logg.WithFields(ctx, eventFields(event))

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"topic":    resolved.Descriptor.Topic,
		"event_id": resolved.Envelope.EventID,
	})

	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(ctx, "outbox event published")
		return nil
	}

	if errors.Is(pubErr, errUnroutable) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonUnroutable, pubErr)
	}
	var nonRetryable registry.NonRetryableError
	if errors.As(pubErr, &nonRetryable) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr))
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"attempt_count": event.AttemptCount + 1,
		"error":         pubErr.Error(),
	})
	s.logg.Warn(ctx, "outbox publish failed, will retry")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	s.metrics.IncFailed(string(event.EventType), metrics.OutboxOutcomeRetry)
	return nil
}

// deadLetter copies the row into the DLQ and retires it from polling.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	s.logg.Warn(ctx, "outbox event moved to dead letter queue")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncFailed(string(event.EventType), metrics.OutboxOutcomeDeadLetter)
	return nil
}

var errUnroutable = errors.New("publisher not configured for topic")

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w: %s", errUnroutable, topic))
	}

	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.instanceID != "" {
		attrs["publisher_instance"] = s.instanceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{Data: event.Payload, Attributes: attrs})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) refreshPending(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "count pending outbox rows failed")
		return
	}
	s.metrics.SetPending(pending)
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
