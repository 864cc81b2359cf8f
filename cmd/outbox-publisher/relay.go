package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, ceiling int) error
	Backlog(ctx context.Context, maxAttempts int) (int64, error)
}

type router interface {
	Resolve(models.OutboxEvent) (*registry.Delivery, error)
}

// sender publishes one message and waits for the broker to acknowledge it.
type sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type relayMetrics interface {
	ObserveBatch(time.Duration)
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncDeadLettered(reason string)
	SetBacklog(n int64)
}

type RelayParams struct {
	Config  config.OutboxConfig
	Logger  *logger.Logger
	DB      txRunner
	Store   eventStore
	Routes  router
	Sender  sender
	Metrics relayMetrics
}

// Relay moves committed outbox rows to Pub/Sub. Each batch is claimed and
// settled inside one transaction, so a crash mid-batch releases the rows.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       eventStore
	routes      router
	sender      sender
	metrics     relayMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Routes == nil:
		return nil, errors.New("event routes are required")
	case p.Sender == nil:
		return nil, errors.New("pubsub sender is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		routes:      p.Routes,
		sender:      p.Sender,
		metrics:     p.Metrics,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		poll:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.metrics == nil {
		r.metrics = metrics.NewOutboxMetrics(nil)
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	return r, nil
}

// Run drains the outbox until ctx is cancelled. Full batches are followed
// immediately by the next one; empty batches and errors wait before polling.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.sender.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = grow(wait, r.poll)
		case handled > 0:
			wait = r.poll
			r.reportBacklog(ctx)
			continue
		default:
			wait = r.poll
		}

		if err := pause(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

func (r *Relay) reportBacklog(ctx context.Context) {
	n, err := r.store.Backlog(ctx, r.maxAttempts)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox backlog unavailable")
		return
	}
	r.metrics.SetBacklog(n)
}
