package datagate

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure reason. Result.Err wraps the matching
// sentinel so callers can use errors.Is.
var (
	// ErrUnknown is returned when a failure cannot be classified.
	ErrUnknown = errors.New("datagate: unknown failure")

	// ErrTamper is returned when a mutation arrives without any identity.
	ErrTamper = errors.New("datagate: tamper")

	// ErrForbidden is returned when an identity lacks the required permission.
	ErrForbidden = errors.New("datagate: forbidden")

	// ErrServiceFailure is returned when a collaborating service failed.
	ErrServiceFailure = errors.New("datagate: service failure")

	// ErrNetworkFailure is returned for connection and timeout failures.
	ErrNetworkFailure = errors.New("datagate: network failure")

	// ErrDbFailure is returned when the database rejected an operation.
	ErrDbFailure = errors.New("datagate: database failure")

	// ErrValidation is returned when input does not pass validation.
	ErrValidation = errors.New("datagate: validation error")

	// ErrConcurrency is returned for serialization and deadlock conflicts.
	ErrConcurrency = errors.New("datagate: concurrency failure")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("datagate: not found")

	// ErrDuplicate is returned when a unique entity already exists.
	ErrDuplicate = errors.New("datagate: entity duplication")

	// ErrBadQuery is returned for operations the transaction cannot perform.
	ErrBadQuery = errors.New("datagate: bad query")

	// ErrQueryOverLimit is returned when a query exceeds the row limit.
	ErrQueryOverLimit = errors.New("datagate: query over limit")

	// ErrIdempotency is returned when an operation was already applied.
	ErrIdempotency = errors.New("datagate: idempotency")
)

// Programmer errors. These never travel inside a Result.
var (
	// ErrNilAction is returned when a nil action or middleware is attached.
	ErrNilAction = errors.New("datagate: nil action")

	// ErrAlreadyAttached is returned when a middleware is attached twice.
	ErrAlreadyAttached = errors.New("datagate: middleware already attached")

	// ErrNotComparable is returned when a middleware cannot be compared for detach.
	ErrNotComparable = errors.New("datagate: middleware is not comparable")

	// ErrModelMismatch is returned when a change item pairs two model types.
	ErrModelMismatch = errors.New("datagate: change item model mismatch")

	// ErrNilActor is returned when authenticating a nil credential.
	ErrNilActor = errors.New("datagate: nil actor")

	// ErrUncommittedChanges is returned when a transaction is closed with staged changes.
	ErrUncommittedChanges = errors.New("datagate: transaction closed with uncommitted changes")
)

var reasonSentinels = map[FailureReason]error{
	ReasonUnknown:            ErrUnknown,
	ReasonTamper:             ErrTamper,
	ReasonForbidden:          ErrForbidden,
	ReasonServiceFailure:     ErrServiceFailure,
	ReasonNetworkFailure:     ErrNetworkFailure,
	ReasonDbFailure:          ErrDbFailure,
	ReasonValidationError:    ErrValidation,
	ReasonConcurrencyFailure: ErrConcurrency,
	ReasonNotFound:           ErrNotFound,
	ReasonEntityDuplication:  ErrDuplicate,
	ReasonBadQuery:           ErrBadQuery,
	ReasonQueryOverLimit:     ErrQueryOverLimit,
	ReasonIdempotency:        ErrIdempotency,
}

// Error wraps a sentinel error with additional context.
type Error struct {
	Err       error  // Underlying sentinel error
	Message   string // Additional context
	Action    string // Action tag involved (if applicable)
	Model     string // Model name involved (if applicable)
	ContextID string // Permission context involved (if applicable)
	Username  string // Identity involved (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithAction adds the action tag to the error.
func (e *Error) WithAction(tag ActionTag) *Error {
	e.Action = tag.String()
	return e
}

// WithModel adds the model name to the error.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// WithContext adds the permission context to the error.
func (e *Error) WithContext(contextID string) *Error {
	e.ContextID = contextID
	return e
}

// WithUsername adds the identity to the error.
func (e *Error) WithUsername(username string) *Error {
	e.Username = username
	return e
}

// IsForbidden checks if an error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsTamper checks if an error was raised for a missing identity.
func IsTamper(err error) bool {
	return errors.Is(err, ErrTamper)
}

// IsNotFound checks if an error reports a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate checks if an error reports an entity duplication.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
