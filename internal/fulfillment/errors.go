package fulfillment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Stable error codes surfaced to clients so front-of-house and kitchen UIs
// can render targeted guidance.
const (
	CodeValidation         = "validation"
	CodeNotFound           = "not_found"
	CodeInvalidTransition  = "invalid_transition"
	CodeOrderNotModifiable = "order_not_modifiable"
	CodeTableNotFree       = "table_not_free"
	CodePermissionDenied   = "permission_denied"
)

// Error is a typed rejection carrying enough context to render a precise
// user-facing message. These represent logical conflicts, never transient
// failures, so callers must not retry them.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the stable code of a typed rejection, or "" for other errors.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(entity string, id uuid.UUID) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func NewInvalidItemTransition(itemID uuid.UUID, current, attempted ItemStatus) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("order item %s cannot move from %s to %s", itemID, current, attempted),
	}
}

func NewInvalidOrderTransition(orderID uuid.UUID, current, attempted OrderStatus) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("order %s cannot move from %s to %s", orderID, current, attempted),
	}
}

func NewOrderNotModifiable(orderID uuid.UUID, status OrderStatus) *Error {
	return &Error{
		Code:    CodeOrderNotModifiable,
		Message: fmt.Sprintf("order %s is %s and no longer accepts items", orderID, status),
	}
}

func NewTableNotFree(tableID uuid.UUID, status string) *Error {
	return &Error{
		Code:    CodeTableNotFree,
		Message: fmt.Sprintf("table %s is %s", tableID, status),
	}
}

func NewPermissionDenied(actorID uuid.UUID, capability string) *Error {
	return &Error{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("actor %s lacks capability %s", actorID, capability),
	}
}
