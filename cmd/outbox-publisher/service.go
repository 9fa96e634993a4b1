package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
)

const (
	defaultBatchSize      = 10
	defaultPollMs         = 1000
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type pinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

type topicResolver interface {
	Resolve(models.OutboxMessage) string
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type topicPublisher interface {
	Publisher(name string) *gcppubsub.Publisher
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	Metrics          *metrics.SagaMetrics
	DB               pinger
	PubSub           pinger
	Publishers       topicPublisher
	Repository       outboxRepository
	Topics           topicResolver
	PublisherFactory publisherFactory
}

// Service relays Pending outbox rows to Pub/Sub. Delivery is at least once: a
// crash between publish and MarkSent republishes the row on the next poll.
type Service struct {
	logg             *logger.Logger
	metrics          *metrics.SagaMetrics
	db               pinger
	pubsub           pinger
	repo             outboxRepository
	topics           topicResolver
	publisherFactory publisherFactory
	batchSize        int
	pollInterval     time.Duration
	publishTimeout   time.Duration
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Topics == nil {
		return nil, errors.New("topic registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		if params.Publishers == nil {
			return nil, errors.New("pubsub client is required")
		}
		factory = func(topic string) publisher {
			return newGCPPublisher(params.Publishers.Publisher(topic))
		}
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	timeout := params.Config.Outbox.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	return &Service{
		logg:             params.Logger,
		metrics:          params.Metrics,
		db:               params.DB,
		pubsub:           params.PubSub,
		repo:             params.Repository,
		topics:           params.Topics,
		publisherFactory: factory,
		batchSize:        batch,
		pollInterval:     time.Duration(pollMs) * time.Millisecond,
		publishTimeout:   timeout,
		now:              time.Now,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "pubsub", s.pubsub)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, p pinger) error {
	if p == nil {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run polls until ctx is canceled. A failed poll skips the cycle and backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox poll failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = s.pollInterval

		// A full batch means more rows are probably waiting.
		if processed >= s.batchSize {
			continue
		}
		if err := s.sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// processBatch relays one batch and returns how many rows it fetched. Publish
// failures are recorded per row and never abort the batch.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	rows, err := s.repo.FetchPending(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending outbox rows: %w", err)
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return len(rows), nil
		}
		topic := s.topics.Resolve(row)
		fields := s.rowFields(row, topic)
		rowCtx := s.logg.WithFields(ctx, fields)

		if err := s.publish(ctx, row, topic); err != nil {
			s.metrics.IncOutboxFailed(topic)
			s.logg.WarnErr(rowCtx, "outbox publish failed", err)
			if markErr := s.repo.MarkFailed(ctx, row.ID, err); markErr != nil {
				s.logg.Error(rowCtx, "recording outbox failure", markErr)
			}
			continue
		}

		s.metrics.IncOutboxPublished(topic)
		updated, err := s.repo.MarkSent(ctx, row.ID, s.now())
		switch {
		case err != nil:
			s.logg.Error(rowCtx, "marking outbox row sent", err)
		case !updated:
			s.logg.Warn(rowCtx, "outbox row was already relayed")
		default:
			s.logg.Debug(rowCtx, "outbox message published")
		}
	}
	return len(rows), nil
}

func (s *Service) publish(ctx context.Context, row models.OutboxMessage, topic string) error {
	if topic == "" {
		return errors.New("no topic resolved")
	}
	pub := s.publisherFactory(topic)
	if pub == nil {
		return fmt.Errorf("publisher not configured for topic %s", topic)
	}

	msg := &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"outbox_id":  row.ID.String(),
			"created_at": row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if row.BusinessType != "" {
		msg.Attributes["business_type"] = string(row.BusinessType)
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", topic)
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) rowFields(row models.OutboxMessage, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"topic":         topic,
		"attempt_count": row.AttemptCount,
	}
	if row.BusinessType != "" {
		fields["business_type"] = row.BusinessType
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
