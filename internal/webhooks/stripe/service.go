package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/marketplace-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// paymentConfirmer is the slice of the orders service the webhook drives.
type paymentConfirmer interface {
	HandlePaymentConfirmed(ctx context.Context, orderID uuid.UUID) error
}

type ServiceParams struct {
	Orders paymentConfirmer
	Logger *logger.Logger
}

type Service struct {
	orders paymentConfirmer
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{
		orders: params.Orders,
		logg:   params.Logger,
	}, nil
}

// HandleEvent applies a verified Stripe event. Event types the marketplace does not act on are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := decodePaymentIntent(event)
		if err != nil {
			return err
		}
		orderID, err := OrderIDFromMetadata(intent.Metadata)
		if err != nil {
			return err
		}
		if s.logg != nil {
			ctx = s.logg.WithFields(ctx, map[string]any{
				"order_id":          orderID.String(),
				"payment_intent_id": intent.ID,
				"stripe_event_id":   event.ID,
			})
			s.logg.Info(ctx, "payment intent succeeded")
		}
		return s.orders.HandlePaymentConfirmed(ctx, orderID)
	case stripe.EventTypePaymentIntentPaymentFailed:
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"stripe_event_id": event.ID,
				"order_id":        event.GetObjectValue("metadata", payments.MetadataOrderID),
			}), "payment intent failed; order stays pending")
		}
		return nil
	default:
		return nil
	}
}

func decodePaymentIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	return &intent, nil
}

// OrderIDFromMetadata reads the order id stamped on the intent at checkout.
func OrderIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	raw := strings.TrimSpace(metadata[payments.MetadataOrderID])
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent metadata missing order_id")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment intent order_id is not a uuid")
	}
	return orderID, nil
}
