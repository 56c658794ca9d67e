package poller

import (
  "sync"
  "time"

  "github.com/bluedot-ble/go-bluedot-poller/device"
)

// Change reports whether a store update produced an observable difference.
type Change uint8

const (
  StateUnchanged Change = iota
  StateChanged
)

func (c Change) String() string {
  if c == StateChanged {
    return "StateChanged"
  }

  return "StateUnchanged"
}

// DeviceState is the externally visible state of one paired device. When the
// device becomes unavailable the last reading is retained and keeps being
// reported, flagged stale rather than vanishing.
type DeviceState struct {
  LastReading *device.Reading
  LastSeenAt time.Time
  Available bool
  ConsecutiveFailures int
}

// Store holds the last known good state for one device. The poll pipeline is
// the only writer; consumers read atomic snapshots and never observe a
// partially updated reading.
type Store struct {
  mu sync.Mutex

  failureThreshold int
  state DeviceState
}

func NewStore(failureThreshold int) *Store {
  return &Store{
    failureThreshold: failureThreshold,
  }
}

// RecordReading applies a successful poll outcome: stores the reading, resets
// the failure counter and flips availability back on, atomically. Returns
// StateChanged only when the reading or the availability flag actually
// differs from what consumers already see.
func (s *Store) RecordReading(r device.Reading) Change {
  s.mu.Lock()
  defer s.mu.Unlock()

  changed := !s.state.Available ||
    s.state.LastReading == nil ||
    !s.state.LastReading.Equal(r)

  s.state.LastReading = &r
  s.state.LastSeenAt = r.CapturedAt
  s.state.Available = true
  s.state.ConsecutiveFailures = 0

  if changed {
    return StateChanged
  }

  return StateUnchanged
}

// RecordFailure applies a failed poll cycle. After failureThreshold
// consecutive failed cycles the device is marked unavailable; the last
// reading is kept.
func (s *Store) RecordFailure() Change {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.state.ConsecutiveFailures += 1

  if s.state.Available && s.state.ConsecutiveFailures >= s.failureThreshold {
    s.state.Available = false
    return StateChanged
  }

  return StateUnchanged
}

// Snapshot returns a copy of the current state. The embedded reading is
// copied too, so callers can't mutate what the next snapshot will report.
func (s *Store) Snapshot() DeviceState {
  s.mu.Lock()
  defer s.mu.Unlock()

  out := s.state

  if s.state.LastReading != nil {
    reading := *s.state.LastReading
    out.LastReading = &reading
  }

  return out
}
