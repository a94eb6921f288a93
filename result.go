package datagate

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/fernandezvara/dbkit"
	"github.com/go-playground/validator/v10"
)

// FailureReason classifies why an operation failed. The set is closed.
// The zero value means "no reason" and is only carried by successful results.
type FailureReason uint8

const (
	ReasonNone FailureReason = iota
	ReasonUnknown
	ReasonTamper
	ReasonForbidden
	ReasonServiceFailure
	ReasonNetworkFailure
	ReasonDbFailure
	ReasonValidationError
	ReasonConcurrencyFailure
	ReasonNotFound
	ReasonEntityDuplication
	ReasonBadQuery
	ReasonQueryOverLimit
	ReasonIdempotency
)

var reasonNames = [...]string{
	ReasonNone:               "None",
	ReasonUnknown:            "Unknown",
	ReasonTamper:             "Tamper",
	ReasonForbidden:          "Forbidden",
	ReasonServiceFailure:     "ServiceFailure",
	ReasonNetworkFailure:     "NetworkFailure",
	ReasonDbFailure:          "DbFailure",
	ReasonValidationError:    "ValidationError",
	ReasonConcurrencyFailure: "ConcurrencyFailure",
	ReasonNotFound:           "NotFound",
	ReasonEntityDuplication:  "EntityDuplication",
	ReasonBadQuery:           "BadQuery",
	ReasonQueryOverLimit:     "QueryOverLimit",
	ReasonIdempotency:        "Idempotency",
}

func (r FailureReason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "Unknown"
}

// Empty is the payload of results that carry no value.
type Empty struct{}

// Status is a result without payload. Middleware actions return *Status and
// a nil pointer means "proceed".
type Status = Result[Empty]

// Result is the success/failure envelope returned by every pipeline, engine
// and broker operation. Build it with Ok, OkWith, Fail or FromError.
type Result[T any] struct {
	reason  FailureReason
	message string
	payload T
	cause   error
}

// Ok returns a successful result with the zero payload.
func Ok[T any]() Result[T] {
	return Result[T]{}
}

// OkWith returns a successful result carrying payload.
func OkWith[T any](payload T) Result[T] {
	return Result[T]{payload: payload}
}

// Fail returns a failed result. A ReasonNone reason is coerced to
// ReasonUnknown so a failure can never look like a success.
func Fail[T any](reason FailureReason, message string) Result[T] {
	if reason == ReasonNone {
		reason = ReasonUnknown
	}
	return Result[T]{reason: reason, message: message}
}

// FromError classifies err into a failed result. A nil error yields Ok.
func FromError[T any](err error) Result[T] {
	if err == nil {
		return Ok[T]()
	}
	return Result[T]{reason: ReasonOf(err), message: err.Error(), cause: err}
}

// failWith returns a failed result with an explicit reason that keeps err
// as its cause.
func failWith[T any](reason FailureReason, err error) Result[T] {
	if reason == ReasonNone {
		reason = ReasonUnknown
	}
	return Result[T]{reason: reason, message: err.Error(), cause: err}
}

// Recast moves a failure into a result with a different payload type.
// Successful results become successful with the zero payload.
func Recast[U, T any](r Result[T]) Result[U] {
	return Result[U]{reason: r.reason, message: r.message, cause: r.cause}
}

// Abort returns a pointer to a failed Status, the shape middleware actions
// return to stop the pipeline.
func Abort(reason FailureReason, message string) *Status {
	s := Fail[Empty](reason, message)
	return &s
}

// Success reports whether the operation succeeded.
func (r Result[T]) Success() bool {
	return r.reason == ReasonNone
}

// Reason returns the failure reason, ReasonNone on success.
func (r Result[T]) Reason() FailureReason {
	return r.reason
}

// Message returns the human readable failure message.
func (r Result[T]) Message() string {
	return r.message
}

// Payload returns the carried value.
func (r Result[T]) Payload() T {
	return r.payload
}

// Get returns the payload and whether the result succeeded.
func (r Result[T]) Get() (T, bool) {
	return r.payload, r.Success()
}

// Err converts a failed result into an *Error wrapping the reason sentinel.
// Successful results return nil.
func (r Result[T]) Err() error {
	if r.Success() {
		return nil
	}
	if r.cause != nil {
		var e *Error
		if errors.As(r.cause, &e) {
			return e
		}
	}
	return NewError(reasonSentinels[r.reason], r.message)
}

// AsStatus drops the payload.
func (r Result[T]) AsStatus() Status {
	return Recast[Empty](r)
}

func (r Result[T]) String() string {
	if r.Success() {
		return "ok"
	}
	if r.message == "" {
		return r.reason.String()
	}
	return r.reason.String() + ": " + r.message
}

// ReasonOf maps an error to the failure taxonomy.
func ReasonOf(err error) FailureReason {
	if err == nil {
		return ReasonNone
	}
	for reason, sentinel := range reasonSentinels {
		if errors.Is(err, sentinel) {
			return reason
		}
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return ReasonValidationError
	case dbkit.IsDuplicate(err):
		return ReasonEntityDuplication
	case dbkit.IsNotFound(err), errors.Is(err, sql.ErrNoRows):
		return ReasonNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonNetworkFailure
	case errors.Is(err, context.Canceled):
		return ReasonServiceFailure
	case isConcurrencyError(err):
		return ReasonConcurrencyFailure
	case isTransientError(err):
		return ReasonNetworkFailure
	}
	return ReasonUnknown
}

var concurrencyMarkers = []string{
	"deadlock",
	"could not serialize",
	"40001",
	"40p01",
	"lock wait timeout",
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"temporary failure",
	"try again",
	"resource temporarily unavailable",
}

func isConcurrencyError(err error) bool {
	return containsAny(strings.ToLower(err.Error()), concurrencyMarkers)
}

// isTransientError reports whether err is worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return containsAny(msg, transientMarkers) || containsAny(msg, concurrencyMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
