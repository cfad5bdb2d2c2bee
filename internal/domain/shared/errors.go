// Package shared contains the error kinds, events and value objects that every
// domain package builds on. It has no dependencies outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is().
var (
	// Entity
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")
	ErrStaleReference  = errors.New("stale reference")

	// State
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrPartialFailure  = errors.New("operation partially applied")

	// External
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError carries the domain, operation and error kind of a failure.
type DomainError struct {
	Domain  string // "student", "group", "attendance", "sync", ...
	Op      string // operation that failed
	Kind    error  // base error for errors.Is()
	Message string
	Err     error // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewValidationError is shorthand for a DomainError of kind ErrValidation.
func NewValidationError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// ValidationFrom wraps err as a validation failure unless it already is one.
func ValidationFrom(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) {
		return err
	}
	return WrapError(domain, op, ErrValidation, "invalid input", err)
}

// Student domain errors
var (
	ErrStudentNotFound = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrInvalidLevel    = NewDomainError("student", "Validate", ErrInvalidInput, "unknown achievement level")
	ErrInvalidBimester = NewDomainError("student", "Validate", ErrInvalidInput, "unknown bimester")
	ErrScoreAboveMax   = NewDomainError("student", "Validate", ErrValueOutOfRange, "score exceeds declared maximum")
)

// Reinforcement domain errors
var (
	ErrGroupNotFound  = NewDomainError("group", "Find", ErrNotFound, "reinforcement group not found")
	ErrEmptyRoster    = NewDomainError("group", "Create", ErrEmptyValue, "group must have at least one member")
	ErrNotAMember     = NewDomainError("group", "Member", ErrInvalidInput, "student is not a member of the group")
	ErrStaleAttendees = NewDomainError("attendance", "Record", ErrStaleReference, "present student is not a current group member")
)

// Catalog domain errors
var (
	ErrCompetencyNotFound = NewDomainError("catalog", "Find", ErrNotFound, "competency not found")
	ErrInvalidBNCCCode    = NewDomainError("catalog", "Validate", ErrInvalidFormat, "invalid BNCC code")
	ErrClassNotFound      = NewDomainError("school", "FindClass", ErrNotFound, "class not found")
	ErrInviteNotFound     = NewDomainError("school", "FindInvite", ErrNotFound, "invite not found")
	ErrInviteTokenInvalid = NewDomainError("school", "AcceptInvite", ErrInvalidInput, "invite token does not match")
	ErrInviteAccepted     = NewDomainError("school", "AcceptInvite", ErrStateTransition, "invite already accepted")
)

// Sync errors
var (
	ErrRemoteUnavailable = NewDomainError("sync", "Remote", ErrServiceUnavailable, "remote store is unavailable")
	ErrOutboxEmpty       = NewDomainError("sync", "Dequeue", ErrNotFound, "outbox is empty")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrStaleReference)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPartialFailure)
}
