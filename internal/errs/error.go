package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrMissingFee           = errors.New("damage fee is required for a damaged or lost item")
	ErrMissingPaymentMethod = errors.New("payment method is required when a damage fee is charged")
	ErrLoanClosed           = errors.New("loan is closed, no further returns permitted")
	ErrItemsImmutable       = errors.New("loan items cannot be changed after creation")
)

// ValidationError is a missing/invalid field caught before any
// inventory effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError carries the available count so the form layer
// can show it to the user.
type InsufficientStockError struct {
	ItemID    int
	ItemName  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d", e.ItemName, e.Available)
}

type ValidationErrorResponse struct {
	Message string `json:"message"`
	Errors  struct {
		AdditionalProperties string `json:"additionalProperties"`
	} `json:"errors"`
}
