package datagate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResultConstructors tests the success and failure envelopes
func TestResultConstructors(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		res := Ok[int]()
		assert.True(t, res.Success())
		assert.Equal(t, ReasonNone, res.Reason())
		assert.Equal(t, 0, res.Payload())
		assert.NoError(t, res.Err())
		assert.Equal(t, "ok", res.String())
	})

	t.Run("ok with payload", func(t *testing.T) {
		v, ok := OkWith("hello").Get()
		assert.True(t, ok)
		assert.Equal(t, "hello", v)
	})

	t.Run("fail", func(t *testing.T) {
		res := Fail[int](ReasonForbidden, "nope")
		assert.False(t, res.Success())
		assert.Equal(t, ReasonForbidden, res.Reason())
		assert.Equal(t, "nope", res.Message())
		assert.Equal(t, "Forbidden: nope", res.String())
		assert.True(t, IsForbidden(res.Err()))
	})

	t.Run("fail with none is coerced", func(t *testing.T) {
		res := Fail[int](ReasonNone, "odd")
		assert.False(t, res.Success())
		assert.Equal(t, ReasonUnknown, res.Reason())
	})

	t.Run("abort", func(t *testing.T) {
		s := Abort(ReasonTamper, "who are you")
		require.NotNil(t, s)
		assert.Equal(t, ReasonTamper, s.Reason())
		assert.True(t, IsTamper(s.Err()))
	})
}

// TestRecast tests moving failures across payload types
func TestRecast(t *testing.T) {
	failed := Recast[string](Fail[int](ReasonNotFound, "gone"))
	assert.Equal(t, ReasonNotFound, failed.Reason())
	assert.Equal(t, "gone", failed.Message())

	ok := Recast[string](OkWith(42))
	assert.True(t, ok.Success())
	assert.Equal(t, "", ok.Payload())

	assert.Equal(t, ReasonNotFound, Fail[int](ReasonNotFound, "").AsStatus().Reason())
}

// TestFromError tests error classification into reasons
func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureReason
	}{
		{"nil", nil, ReasonNone},
		{"sentinel", ErrForbidden, ReasonForbidden},
		{"wrapped sentinel", fmt.Errorf("load: %w", ErrNotFound), ReasonNotFound},
		{"typed error", NewError(ErrDuplicate, "taken"), ReasonEntityDuplication},
		{"deadline", context.DeadlineExceeded, ReasonNetworkFailure},
		{"cancelled", context.Canceled, ReasonServiceFailure},
		{"deadlock", errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), ReasonConcurrencyFailure},
		{"connection", errors.New("dial tcp: connection refused"), ReasonNetworkFailure},
		{"anything else", errors.New("boom"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FromError[Empty](tt.err)
			assert.Equal(t, tt.want, res.Reason())
			assert.Equal(t, tt.want, ReasonOf(tt.err))
		})
	}
}

// TestResultErrKeepsCause tests that Err returns the original *Error
func TestResultErrKeepsCause(t *testing.T) {
	cause := NewError(ErrDuplicate, "username taken").WithUsername("alice")
	err := FromError[Empty](cause).Err()

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "alice", e.Username)
	assert.True(t, IsDuplicate(err))
}

// TestFailureReasonString tests reason names
func TestFailureReasonString(t *testing.T) {
	assert.Equal(t, "None", ReasonNone.String())
	assert.Equal(t, "QueryOverLimit", ReasonQueryOverLimit.String())
	assert.Equal(t, "Idempotency", ReasonIdempotency.String())
	assert.Equal(t, "Unknown", FailureReason(200).String())
}

// TestTransientClassification tests which errors are retried
func TestTransientClassification(t *testing.T) {
	assert.True(t, isTransientError(errors.New("read: connection reset by peer")))
	assert.True(t, isTransientError(errors.New("could not serialize access")))
	assert.True(t, isTransientError(context.DeadlineExceeded))
	assert.False(t, isTransientError(errors.New("syntax error at or near")))
	assert.False(t, isTransientError(nil))
}
