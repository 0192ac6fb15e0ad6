package chain

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMapper_FirstMatchWins(t *testing.T) {
	m := NewErrorMapper(
		Pattern(ErrAccountNotFound, `unknown key`),
		Pattern(ErrAccountAlreadyExists, `already taken|unknown key`),
	)

	tests := []struct {
		text string
		want ErrorKind
	}{
		{"unknown key (boost::tuples): (0 alice)", ErrAccountNotFound},
		{"name is already taken", ErrAccountAlreadyExists},
		{"something else entirely", ErrUnknown},
		{"", ErrUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Kind(tt.text), tt.text)
	}
}

func TestErrorMapper_Map(t *testing.T) {
	m := NewErrorMapper(Pattern(ErrBlockDoesNotExist, `(?i)could not find block`))

	require.NoError(t, m.Map(nil))

	err := m.Map(errors.New("Could not find block: 12"))
	require.True(t, IsKind(err, ErrBlockDoesNotExist))

	already := NewError(ErrInvalidSignature, "bad")
	require.Same(t, already, m.Map(already))

	wrapped := pkgerrors.Wrap(NewError(ErrAccountNotFound, "alice"), "load account")
	require.Equal(t, ErrAccountNotFound, KindOf(m.Map(wrapped)))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrChainConnectFailed, cause, "connect %s", "http://localhost")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "ChainConnectFailed")
	require.Equal(t, ErrUnknown, KindOf(cause))
}
