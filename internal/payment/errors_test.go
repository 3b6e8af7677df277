package payment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(CodeInitFailed, "Init failed with HTTP status 500", cause)

	require.EqualError(t, err, "Init failed with HTTP status 500")
	require.ErrorIs(t, err, cause)
}

func TestAsError(t *testing.T) {
	err := NewError(CodeCancelled, "payment was cancelled by the user", nil)

	pe, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, CodeCancelled, pe.Code)

	// Classification survives wrapping.
	wrapped := fmt.Errorf("while paying: %w", err)
	pe, ok = AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, CodeCancelled, pe.Code)

	_, ok = AsError(errors.New("plain"))
	require.False(t, ok)
}

func TestOutcomeFor(t *testing.T) {
	require.Equal(t, "success", outcomeFor(nil))
	require.Equal(t, "cancelled", outcomeFor(NewError(CodeCancelled, "cancelled", nil)))
	require.Equal(t, "rejected", outcomeFor(NewError(CodeBackendRejected, "rejected", nil)))
	require.Equal(t, "failed", outcomeFor(NewError(CodeInitFailed, "init", nil)))
	require.Equal(t, "failed", outcomeFor(errors.New("plain")))
}
