package permit

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the permit service.
var (
	ErrAllocatorExhausted    = errors.New("folio allocator exhausted")
	ErrFolioTaken            = errors.New("folio already issued")
	ErrUnknownPermit         = errors.New("unknown permit")
	ErrPermitClosed          = errors.New("permit no longer pending")
	ErrReservationExists     = errors.New("reservation already active")
	ErrNoPendingReservation  = errors.New("no pending reservation")
	ErrAmbiguousReservation  = errors.New("ambiguous reservation")
	ErrInvalidFolio          = errors.New("invalid folio")
	ErrInvalidOwnerID        = errors.New("invalid owner id")
	ErrInvalidPlate          = errors.New("invalid plate")
	ErrInvalidStatus         = errors.New("invalid permit status")
	ErrInvalidReminderPlan   = errors.New("invalid reminder plan")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
	ErrDocumentRender        = errors.New("document render failed")
	ErrNoIntakeSession       = errors.New("no intake session")
	ErrIntakeSessionComplete = errors.New("intake session already complete")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// ValidationError reports an intake answer that broke a field rule.
// The session stays on Step when it is returned.
type ValidationError struct {
	Step Step
	Rule string
}

func (validationError ValidationError) Error() string {
	return fmt.Sprintf("intake.%s: %s", validationError.Step, validationError.Rule)
}
