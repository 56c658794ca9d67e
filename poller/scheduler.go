package poller

import (
  "strconv"
  "time"
)

// Trigger is the reason a poll was initiated.
type Trigger uint8

const (
  // TriggerAdvertisement: a qualifying advertisement arrived and the minimum
  // interval since the last poll attempt has elapsed.
  TriggerAdvertisement Trigger = iota
  // TriggerTimerFallback: the fallback timer fired. Guarantees progress even
  // for devices with sparse or absent advertisements.
  TriggerTimerFallback
)

func (t Trigger) String() string {
  switch t {
  case TriggerAdvertisement:
    return "Advertisement"
  case TriggerTimerFallback:
    return "TimerFallback"
  default:
    panic("unknown Trigger value: " + strconv.Itoa(int(t)))
  }
}

// Decision is the outcome of feeding one trigger event to the scheduler.
type Decision struct {
  ShouldPoll bool
  Reason Trigger
}

type schedulerState uint8

const (
  stateIdle schedulerState = iota
  statePollInFlight
)

// Scheduler decides when a poll is due for one device. Two trigger sources
// feed one Idle/PollInFlight state machine: while a poll is in flight both
// sources are dropped, never queued, so at most one poll is in flight per
// device at all times.
//
// Not safe for concurrent use; the owning coordinator serializes all calls.
type Scheduler struct {
  minInterval time.Duration

  state schedulerState
  lastAttempt time.Time
}

func NewScheduler(minInterval time.Duration) *Scheduler {
  return &Scheduler{
    minInterval: minInterval,
  }
}

// OnAdvertisement handles a qualifying advertisement arriving at `now`.
// A poll is due when the scheduler is idle and at least the advertisement
// minimum interval has elapsed since the last poll attempt.
func (s *Scheduler) OnAdvertisement(now time.Time) Decision {
  if s.state != stateIdle {
    return Decision{}
  }

  if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.minInterval {
    return Decision{}
  }

  s.state = statePollInFlight
  s.lastAttempt = now

  return Decision{ShouldPoll: true, Reason: TriggerAdvertisement}
}

// OnTick handles a fallback timer tick. The tick fires a poll regardless of
// advertisement activity, as long as the scheduler is idle.
func (s *Scheduler) OnTick(now time.Time) Decision {
  if s.state != stateIdle {
    return Decision{}
  }

  s.state = statePollInFlight
  s.lastAttempt = now

  return Decision{ShouldPoll: true, Reason: TriggerTimerFallback}
}

// Complete transitions back to idle after a poll cycle finishes, whether it
// succeeded or exhausted its retries.
func (s *Scheduler) Complete() {
  s.state = stateIdle
}
