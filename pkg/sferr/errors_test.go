package sferr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorUnwrapExposesInternal(t *testing.T) {
	inner := errors.New("boom")
	e := Wrap(KindRemoteIO, "read failed", inner)
	require.Equal(t, inner, errors.Unwrap(e))
	require.ErrorIs(t, e, inner)
}

func TestWithInternalReturnsCopyNotMutatingOriginal(t *testing.T) {
	base := New(KindNetwork, "dial failed")
	inner := errors.New("refused")
	derived := base.WithInternal(inner)

	require.Nil(t, base.Internal)
	require.Equal(t, inner, derived.Internal)
}

func TestWithEndpointAndPathComposeIntoMessage(t *testing.T) {
	e := New(KindRemoteIO, "write failed").WithEndpoint("u@h:22").WithPath("/tmp/x")
	require.Contains(t, e.Error(), "u@h:22")
	require.Contains(t, e.Error(), "/tmp/x")
}

func TestAggregateUsesFirstErrorAsCause(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	agg := Aggregate([]error{first, second})

	require.Equal(t, KindUploadAggregated, agg.Kind)
	require.Equal(t, first, agg.Internal)
	require.Len(t, agg.Aggregated, 2)
}

func TestAggregateOfNoErrorsReturnsNil(t *testing.T) {
	require.Nil(t, Aggregate(nil))
}

func TestIsMatchesKindButNotTextOnlyCopy(t *testing.T) {
	e := New(KindStalledWrite, "no progress")
	wrapped := errors.New("context: " + e.Error())
	require.True(t, Is(e, KindStalledWrite))
	require.False(t, Is(wrapped, KindStalledWrite))
}
