package orders

import (
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// TransitionSource identifies who is driving a status change.
type TransitionSource string

const (
	// SourceManual is a delivery agent or staff member updating the order.
	SourceManual TransitionSource = "manual"
	// SourcePayment is the payment confirmation path.
	SourcePayment TransitionSource = "payment"
)

// Transition validates moving an order from current to target and returns target.
// Only single forward steps are legal and only the payment path may place an order.
func Transition(current, target enums.OrderStatus, source TransitionSource) (enums.OrderStatus, error) {
	if !target.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	if !current.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "order has unknown status")
	}

	details := map[string]any{"from": current, "to": target}
	if target.Index()-current.Index() != 1 {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "invalid status transition").WithDetails(details)
	}
	placing := target == enums.OrderStatusPlaced
	if placing != (source == SourcePayment) {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "status can only be set to placed by payment confirmation").WithDetails(details)
	}
	return target, nil
}
