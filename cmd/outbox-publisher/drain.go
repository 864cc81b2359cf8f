package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
)

// drain claims one batch and settles every row in it. It returns the number
// of rows claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveBatch(time.Since(start)) }()

	var handled int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := r.relay(ctx, tx, row); err != nil {
				return err
			}
		}
		handled = len(rows)
		return nil
	})
	return handled, err
}

// relay publishes one row and records the result. Only bookkeeping errors are
// returned; publish failures are recorded on the row.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	delivery, err := r.routes.Resolve(row)
	if err != nil {
		return r.deadLetter(ctx, tx, row, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	topic := delivery.Route.Topic

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err = r.sender.Send(sendCtx, topic, message(row, delivery))
	cancel()

	attempt := row.AttemptCount + 1
	switch {
	case err == nil:
		if err := r.store.MarkPublished(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Info(r.logg.WithFields(ctx, rowFields(row, topic, delivery.Envelope.EventID)), "outbox event published")
		return nil

	case registry.IsPermanent(err):
		return r.deadLetter(ctx, tx, row, topic, enums.OutboxDLQReasonNonRetryable, err)

	case attempt >= r.maxAttempts:
		return r.deadLetter(ctx, tx, row, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, err))
	}

	fields := rowFields(row, topic, delivery.Envelope.EventID)
	fields["attempt_count"] = attempt
	fields["error"] = err.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
	r.metrics.IncFailed(string(row.EventType))
	if err := r.store.RecordFailure(tx, row.ID, err); err != nil {
		return fmt.Errorf("record failure for %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := rowFields(row, topic, "")
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	if err := r.store.DeadLetter(tx, row, reason, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	r.metrics.IncDeadLettered(string(reason))
	return nil
}

// message keys every event by its order so subscribers see an order's events
// in the sequence they were written.
func message(row models.OutboxEvent, d *registry.Delivery) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: row.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       d.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    d.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func rowFields(row models.OutboxEvent, topic, eventID string) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if eventID != "" {
		fields["event_id"] = eventID
	}
	return fields
}
