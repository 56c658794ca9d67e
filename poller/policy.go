package poller

import (
  "time"

  "github.com/bluedot-ble/go-bluedot-poller/ble"
  "github.com/bluedot-ble/go-bluedot-poller/utils"
)

// Action is the retry policy's verdict on a failed connection attempt.
type Action struct {
  // Retry the attempt within the same poll cycle after waiting After.
  // When false, the cycle gives up and waits for the next trigger.
  Retry bool
  After time.Duration
}

// RetryPolicy decides whether a failed attempt is worth retrying within the
// current poll cycle. Transient transport failures (timeout, gatt error,
// dropped notification) are retried with exponential backoff up to MaxRetries;
// an unreachable device or an exhausted connection-slot budget is not - the
// device is simply not there, the next trigger will find out.
type RetryPolicy struct {
  MaxRetries int
  BackoffFactor time.Duration
}

func (p RetryPolicy) NextAction(err error, attempt int) Action {
  if attempt >= p.MaxRetries {
    return Action{}
  }

  if !utils.ErrorIsAnyOf(err, ble.ErrTimeout, ble.ErrNotify, ble.ErrGatt) {
    return Action{}
  }

  backoff := p.BackoffFactor << attempt

  if backoff < 0 {
    backoff = p.BackoffFactor
  }

  return Action{Retry: true, After: backoff}
}
