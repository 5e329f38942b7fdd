package balance

import (
	"fmt"

	"github.com/mvale/housetab/internal/model"
)

// Validation failure reasons. They double as metric label values, so
// keep them short and stable.
const (
	ReasonInvalidAmount     = "invalid_amount"
	ReasonFamilyMismatch    = "family_mismatch"
	ReasonOutsideFamily     = "outside_family"
	ReasonNoDebtExists      = "no_debt_exists"
	ReasonWrongDirection    = "wrong_direction"
	ReasonAmountExceedsDebt = "amount_exceeds_debt"
	ReasonMemberHasHistory  = "member_has_history"
)

// NotFoundError reports a missing family, member, expense or payment.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func notFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError rejects a mutation before anything is written.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// InvalidStateError rejects a payment transition that the state machine
// does not allow. Only pending payments can be confirmed or rejected.
type InvalidStateError struct {
	PaymentID string
	Status    model.PaymentStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("payment %s is %s; only pending payments can change state", e.PaymentID, e.Status)
}
