package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Stripe events are small; anything larger is truncated and fails verification.
const maxEventBytes = 64 << 10

type EventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type replayGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type signingSecret interface {
	SigningSecret() string
}

type ack struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies the Stripe-Signature header and applies the event once.
// Deliveries that fail verification get a 200 with received=false.
func StripeWebhook(events EventHandler, secret signingSecret, guard replayGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if events == nil || secret == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), secret.SigningSecret())
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe webhook rejected")
			}
			responses.WriteSuccess(w, ack{})
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"stripe_event_id":   event.ID,
				"stripe_event_type": string(event.Type),
			})
		}

		first, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if !first {
			if logg != nil {
				logg.Info(ctx, "stripe event replayed")
			}
			responses.WriteSuccess(w, ack{Received: true})
			return
		}

		if err := events.HandleEvent(ctx, &event); err != nil {
			if forgetErr := guard.Forget(ctx, event.ID); forgetErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event claim", forgetErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "stripe event applied")
		}
		responses.WriteSuccess(w, ack{Received: true})
	}
}
