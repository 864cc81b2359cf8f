package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

// Route says where an event type is published and how its data decodes.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// Delivery is an outbox row that passed validation and is ready to publish.
type Delivery struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Table maps every publishable event type to its route.
type Table struct {
	routes map[enums.OutboxEventType]Route
}

// NewTable routes all order events to the orders topic.
func NewTable(cfg config.PubSubConfig) (*Table, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	t := &Table{routes: map[enums.OutboxEventType]Route{}}
	t.add(Route{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		Topic:         cfg.OrdersTopic,
		decode:        decodeAs[payloads.OrderPlacedEvent],
	})
	t.add(Route{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		Topic:         cfg.OrdersTopic,
		decode:        decodeAs[payloads.OrderStatusChangedEvent],
	})
	return t, nil
}

func (t *Table) add(r Route) {
	t.routes[r.EventType] = r
}

// Resolve checks the row against its route and decodes the typed payload.
// Every failure is permanent: the same row will never resolve on retry.
func (t *Table) Resolve(row models.OutboxEvent) (*Delivery, error) {
	route, ok := t.routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %s", row.EventType))
	}
	if route.AggregateType != row.AggregateType {
		return nil, Permanent(fmt.Errorf("%s expects aggregate %s, row has %s", row.EventType, route.AggregateType, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(fmt.Errorf("%s row has no aggregate id", row.EventType))
	}

	envelope, err := outbox.OpenEnvelope(row.Payload)
	if err != nil {
		return nil, Permanent(fmt.Errorf("%s: %w", row.EventType, err))
	}
	payload, err := route.decode(envelope.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s payload: %w", row.EventType, err))
	}
	return &Delivery{Route: route, Envelope: envelope, Payload: payload}, nil
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
