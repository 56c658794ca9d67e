package poller_test

import (
	"testing"
	"time"

	"github.com/bluedot-ble/go-bluedot-poller/ble"
	"github.com/bluedot-ble/go-bluedot-poller/poller"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_TransientFailuresAreRetried(t *testing.T) {
	p := poller.RetryPolicy{MaxRetries: 2, BackoffFactor: 500 * time.Millisecond}

	for _, err := range []error{ble.ErrTimeout, ble.ErrNotify, ble.ErrGatt} {
		a := p.NextAction(err, 0)

		require.True(t, a.Retry, "expected retry for %v", err)
		require.Equal(t, 500*time.Millisecond, a.After)
	}
}

func TestRetryPolicy_WrappedErrorsAreRecognized(t *testing.T) {
	p := poller.RetryPolicy{MaxRetries: 2, BackoffFactor: time.Millisecond}

	a := p.NextAction(errors.Wrap(ble.ErrTimeout, "dialing aa:bb:cc:dd:ee:ff"), 0)

	require.True(t, a.Retry)
}

func TestRetryPolicy_BackoffGrowsPerAttempt(t *testing.T) {
	p := poller.RetryPolicy{MaxRetries: 3, BackoffFactor: 500 * time.Millisecond}

	require.Equal(t, 500*time.Millisecond, p.NextAction(ble.ErrTimeout, 0).After)
	require.Equal(t, time.Second, p.NextAction(ble.ErrTimeout, 1).After)
	require.Equal(t, 2*time.Second, p.NextAction(ble.ErrTimeout, 2).After)
}

func TestRetryPolicy_UnreachableIsNotRetried(t *testing.T) {
	p := poller.RetryPolicy{MaxRetries: 2, BackoffFactor: time.Millisecond}

	require.False(t, p.NextAction(ble.ErrUnreachable, 0).Retry)
	require.False(t, p.NextAction(ble.ErrNoConnectionSlot, 0).Retry)
}

func TestRetryPolicy_AttemptCapIsEnforced(t *testing.T) {
	p := poller.RetryPolicy{MaxRetries: 2, BackoffFactor: time.Millisecond}

	require.True(t, p.NextAction(ble.ErrTimeout, 0).Retry)
	require.True(t, p.NextAction(ble.ErrTimeout, 1).Retry)
	require.False(t, p.NextAction(ble.ErrTimeout, 2).Retry)
}
