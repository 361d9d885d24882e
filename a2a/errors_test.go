package a2a

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorPreservesCodeAndMessage(t *testing.T) {
	err := NewTaskNotFound("t1")
	require.Equal(t, CodeTaskNotFound, err.Code)
	require.Contains(t, err.Error(), "t1")
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewTaskNotFound("t1")
	require.True(t, errors.Is(err, NewTaskNotFound("t2")))
	require.False(t, errors.Is(err, NewInvalidParams("x")))
}

func TestNewInternalErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternalError(cause)
	require.Equal(t, CodeInternalError, err.Code)
	require.ErrorIs(t, err, cause)
}

func TestAsErrorUnwrapsWrappedError(t *testing.T) {
	inner := NewTaskNotFound("t1")
	wrapped := errors.New("context: " + inner.Error())
	_, ok := AsError(wrapped)
	require.False(t, ok)

	e, ok := AsError(inner)
	require.True(t, ok)
	require.Equal(t, inner, e)

	e, ok = AsError(fmt.Errorf("context: %w", inner))
	require.True(t, ok)
	require.Equal(t, inner, e)
}
