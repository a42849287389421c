package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrappersKeepTheirKind(t *testing.T) {
	testCases := []struct {
		err  error
		kind error
	}{
		{ConfigurationMismatchf("space %s on backend %s", "cuda:0", "host"), ErrConfigurationMismatch},
		{UnsupportedOperationf("operation %q", "spmv"), ErrUnsupportedOperation},
		{DeviceErrorf("device %d", 3), ErrDevice},
		{CommunicationErrorf("rank %d", 1), ErrCommunication},
		{DimensionMismatchf("%d vs %d", 4, 5), ErrDimensionMismatch},
		{Closedf("executor %s", "abc"), ErrClosed},
	}
	for _, tc := range testCases {
		require.ErrorIs(t, tc.err, tc.kind)
		require.True(t, Is(tc.err, tc.kind))
	}
	// Kinds stay distinct.
	require.NotErrorIs(t, testCases[0].err, ErrDevice)
}

func TestMessageCarriesContextAndKind(t *testing.T) {
	err := DeviceErrorf("opening cuda device %d", 2)
	require.EqualError(t, err, "opening cuda device 2: device error")
}
