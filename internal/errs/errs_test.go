package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedError(t *testing.T) {
	t.Parallel()

	base := &Error{Kind: KindAuthentication, Op: "list jobs", StatusCode: 401, Err: ErrUnauthorized}
	wrapped := fmt.Errorf("poll: %w", base)

	require.Equal(t, KindAuthentication, KindOf(wrapped))
	require.True(t, Is(wrapped, KindAuthentication))
	require.False(t, Is(wrapped, KindMutation))
	require.ErrorIs(t, wrapped, ErrUnauthorized)
	require.Equal(t, 401, StatusCode(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	require.False(t, Is(nil, KindUnknown))
	require.Zero(t, StatusCode(errors.New("boom")))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindMutation, Op: "start job", StatusCode: 500, Err: errors.New("database down")}
	require.Equal(t, "start job (HTTP 500): database down", err.Error())

	v := Validation("add job", "url is required")
	require.Equal(t, "add job: url is required", v.Error())
	require.Equal(t, KindValidation, v.Kind)

	bare := &Error{Kind: KindTransientFetch}
	require.Equal(t, "transient_fetch", bare.Error())
}
