package errors

import (
	"errors"
	"fmt"
)

// Domain errors of the account ledger.
var (
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrRecordNotFound     = errors.New("record not found")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrConflict           = errors.New("concurrent update conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not signed in")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidTransition  = errors.New("invalid state transition")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// StoreError is a failed read or write on the persistence backend.
type StoreError struct {
	Operation string
	Cause     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during '%s': %v", e.Operation, e.Cause)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Cause}
}

func NewStoreError(operation string, cause error) error {
	return &StoreError{
		Operation: operation,
		Cause:     cause,
	}
}

// SessionSyncError means the ledger write succeeded but the cached session
// projection could not be refreshed afterwards.
type SessionSyncError struct {
	Email string
	Cause error
}

func (e *SessionSyncError) Error() string {
	return fmt.Sprintf("ledger updated but session for %s not refreshed: %v", e.Email, e.Cause)
}

func (e *SessionSyncError) Unwrap() error {
	return e.Cause
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsSessionSyncError(err error) bool {
	var syncErr *SessionSyncError
	return errors.As(err, &syncErr)
}
