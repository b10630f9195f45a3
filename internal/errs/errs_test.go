package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsSetKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"invalid", InvalidInput("cache", "Get", errors.New("bad key")), KindInvalidInput},
		{"capacity", Capacity("governor", "DeferHeavySteps", nil), KindCapacity},
		{"collaborator", Collaborator("scaler", "EvaluateScalingPolicies", errors.New("downstream")), KindCollaborator},
		{"invariant", Invariant("ladder", "Evaluate", errors.New("level out of range")), KindInvariant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, Is(tc.err, tc.kind))
		})
	}
}

func TestErrorMessageIncludesComponentAndOp(t *testing.T) {
	err := InvalidInput("cache", "Get", errors.New("bad key"))
	require.Contains(t, err.Error(), "cache")
	require.Contains(t, err.Error(), "Get")
	require.Contains(t, err.Error(), "bad key")
}

func TestUnwrapReturnsUnderlyingError(t *testing.T) {
	underlying := errors.New("boom")
	err := Capacity("governor", "op", underlying)
	require.ErrorIs(t, err, underlying)
}

func TestIsFalseForMismatchedKind(t *testing.T) {
	err := InvalidInput("cache", "Get", errors.New("bad key"))
	require.False(t, Is(err, KindCapacity))
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(errors.New("plain"), KindInvariant))
}
