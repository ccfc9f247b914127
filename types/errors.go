package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotActive         = errors.New("plan is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ValidationError represents a user-facing validation error.
// Message is safe to show to the caller, Err carries the detail.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil || e.Err == nil {
		return "validation error"
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewValidationError(err error, message string) *ValidationError {
	return &ValidationError{Err: err, Message: message}
}

// ExecutionError is returned when a plan execution gave up. Status is the status
// the plan was moved to, so callers can deregister its trigger.
type ExecutionError struct {
	PlanID   uuid.UUID
	Status   PlanStatus
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Status == PlanStatusInsufficientFunds {
		return fmt.Sprintf("insufficient funds for plan %s execution: %v", e.PlanID, e.Err)
	}
	return fmt.Sprintf("failed to execute plan %s trade after %d attempts: %v", e.PlanID, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// BookkeepingError means the trade settled but the plan row could not be updated.
// Retrying it would submit the trade a second time.
type BookkeepingError struct {
	PlanID uuid.UUID
	Trade  *Trade
	Err    error
}

func (e *BookkeepingError) Error() string {
	return fmt.Sprintf("trade settled but plan %s bookkeeping failed: %v", e.PlanID, e.Err)
}

func (e *BookkeepingError) Unwrap() error {
	return e.Err
}

// UnsettledTradeError means execution was cut off while a trade request was in
// flight. The trade may still settle, so the job must not be redelivered.
type UnsettledTradeError struct {
	PlanID  uuid.UUID
	Attempt int
	Err     error
}

func (e *UnsettledTradeError) Error() string {
	return fmt.Sprintf("plan %s trade attempt %d interrupted before settlement was confirmed: %v", e.PlanID, e.Attempt, e.Err)
}

func (e *UnsettledTradeError) Unwrap() error {
	return e.Err
}
