package payments

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/marketplace-backend/pkg/stripe"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// MetadataOrderID is the payment intent metadata key carrying the order id.
const MetadataOrderID = "order_id"

// IntentRequest asks the gateway to collect Amount for an order.
type IntentRequest struct {
	OrderID  uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

// Intent is the gateway's handle for a pending payment.
type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
}

// Gateway creates payment intents for pending orders.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

type intentCreator interface {
	New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntents struct{}

func (stripeIntents) New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

// StripeGateway creates Stripe PaymentIntents with automatic payment methods.
type StripeGateway struct {
	intents intentCreator
}

// NewStripeGateway wraps the configured Stripe client. The client must have been
// initialized so the package-level API key is set.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil || client.API() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &StripeGateway{intents: stripeIntents{}}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	amount, err := ToMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(MetadataOrderID, req.OrderID.String())
	// a retried create for the same order returns the original intent
	params.SetIdempotencyKey("order-intent-" + req.OrderID.String())

	pi, err := g.intents.New(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment intent")
	}
	if pi == nil || pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent missing from gateway response")
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  amount,
		Currency:     currency,
	}, nil
}

// ToMinorUnits converts a decimal amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}
