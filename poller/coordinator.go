package poller

import (
  "context"
  "fmt"
  "net"
  "time"

  "github.com/bluedot-ble/go-bluedot-poller/ble"
  "github.com/bluedot-ble/go-bluedot-poller/device"
  "github.com/rs/zerolog/log"
)

const (
  DefaultMinPollInterval = 30 * time.Second
  DefaultFallbackInterval = 60 * time.Second
  DefaultAttemptTimeout = 10 * time.Second
  DefaultMaxRetries = 2
  DefaultBackoffFactor = 500 * time.Millisecond
  DefaultFailureThreshold = 3
)

// Transport performs one connect-per-poll characteristic read. Implemented by
// *ble.Handle; faked in tests.
type Transport interface {
  Poll(ctx context.Context, addr net.HardwareAddr, char ble.UUID) ([]byte, error)
}

// StateChangedFunc is invoked synchronously with a state store update, only
// when the update actually changed what consumers observe.
type StateChangedFunc func(addr net.HardwareAddr, state DeviceState)

type Config struct {
  MinPollInterval time.Duration
  FallbackInterval time.Duration
  AttemptTimeout time.Duration
  MaxRetries int
  BackoffFactor time.Duration
  FailureThreshold int
}

// Validate rejects configuration errors at setup; they are never a runtime
// concern for the poll pipeline.
func (c Config) Validate() error {
  if c.MinPollInterval <= 0 {
    return fmt.Errorf("min poll interval must be positive, got %v", c.MinPollInterval)
  }

  if c.FallbackInterval <= 0 {
    return fmt.Errorf("fallback interval must be positive, got %v", c.FallbackInterval)
  }

  if c.AttemptTimeout <= 0 {
    return fmt.Errorf("attempt timeout must be positive, got %v", c.AttemptTimeout)
  }

  if c.MaxRetries < 0 {
    return fmt.Errorf("max retries must not be negative, got %v", c.MaxRetries)
  }

  if c.BackoffFactor < 0 {
    return fmt.Errorf("backoff factor must not be negative, got %v", c.BackoffFactor)
  }

  if c.FailureThreshold < 1 {
    return fmt.Errorf("failure threshold must be at least 1, got %v", c.FailureThreshold)
  }

  return nil
}

func DefaultConfig() Config {
  return Config{
    MinPollInterval: DefaultMinPollInterval,
    FallbackInterval: DefaultFallbackInterval,
    AttemptTimeout: DefaultAttemptTimeout,
    MaxRetries: DefaultMaxRetries,
    BackoffFactor: DefaultBackoffFactor,
    FailureThreshold: DefaultFailureThreshold,
  }
}

// Advertisement is the slice of a BLE advertisement the poll pipeline cares
// about. Ephemeral: consumed by the scheduler, never retained.
type Advertisement struct {
  Addr net.HardwareAddr
  Rssi int
  ReceivedAt time.Time
  ManufacturerData []byte
}

// Coordinator runs the poll pipeline for one device: it consumes scheduling
// triggers, drives the connect/read/disconnect cycle, decodes frames through
// the device backend, applies the retry policy on failure and updates the
// state store exactly once per completed cycle.
type Coordinator struct {
  dev device.Device
  backend device.NotifyBackend
  transport Transport
  cfg Config

  sched *Scheduler
  policy RetryPolicy
  store *Store
  onChange StateChangedFunc

  adverts chan Advertisement
  lastRssi int

  now func() time.Time
}

func NewCoordinator(
  dev device.Device,
  transport Transport,
  cfg Config,
  onChange StateChangedFunc,
) (*Coordinator, error) {
  if err := cfg.Validate(); err != nil {
    return nil, fmt.Errorf("invalid configuration for %v: %w", dev, err)
  }

  backend, ok := dev.Backend().(device.NotifyBackend)

  if !ok {
    return nil, fmt.Errorf("device %v has backend %T, want a NotifyBackend", dev, dev.Backend())
  }

  return &Coordinator{
    dev: dev,
    backend: backend,
    transport: transport,
    cfg: cfg,
    sched: NewScheduler(cfg.MinPollInterval),
    policy: RetryPolicy{
      MaxRetries: cfg.MaxRetries,
      BackoffFactor: cfg.BackoffFactor,
    },
    store: NewStore(cfg.FailureThreshold),
    onChange: onChange,
    // capacity 1: an advertisement arriving mid-poll is dropped, not queued.
    adverts: make(chan Advertisement, 1),
    now: time.Now,
  }, nil
}

// Deliver hands an advertisement to the coordinator without blocking the
// caller. Advertisements arriving while the pipeline is busy are dropped.
func (c *Coordinator) Deliver(adv Advertisement) {
  select {
  case c.adverts <- adv:
  default:
  }
}

// State returns a read-only snapshot of the device state.
func (c *Coordinator) State() DeviceState {
  return c.store.Snapshot()
}

// Run drives the pipeline until the context is canceled. Advertisement and
// timer triggers are strictly serialized: no two polls for this device ever
// overlap.
func (c *Coordinator) Run(ctx context.Context) {
  ticker := time.NewTicker(c.cfg.FallbackInterval)
  defer ticker.Stop()

  log.Info().
    Stringer("Device", c.dev).
    Dur("MinPollInterval", c.cfg.MinPollInterval).
    Dur("FallbackInterval", c.cfg.FallbackInterval).
    Dur("AttemptTimeout", c.cfg.AttemptTimeout).
    Int("FailureThreshold", c.cfg.FailureThreshold).
    Msg("Starting poll pipeline")

  for {
    select {
    case <-ctx.Done():
      log.Info().Stringer("Device", c.dev).Msg("Poll pipeline stopped")
      return
    case adv := <-c.adverts:
      if adv.Rssi != 0 {
        c.lastRssi = adv.Rssi
      }

      if d := c.sched.OnAdvertisement(c.now()); d.ShouldPoll {
        c.runCycle(ctx, d.Reason)
        drainTick(ticker)
      } else {
        log.Trace().
          Stringer("Device", c.dev).
          Int("Rssi", adv.Rssi).
          Msg("Advertisement received, poll not due")
      }
    case <-ticker.C:
      if d := c.sched.OnTick(c.now()); d.ShouldPoll {
        c.runCycle(ctx, d.Reason)
        drainTick(ticker)
      }
    }
  }
}

// drainTick discards a fallback tick that fired while a poll cycle was
// running. Mid-cycle triggers are dropped, never deferred; a buffered tick
// left in the channel would start a second poll back-to-back with the first.
func drainTick(ticker *time.Ticker) {
  select {
  case <-ticker.C:
  default:
  }
}

// runCycle performs one complete poll cycle: connect/read with in-cycle
// retries, decode, then exactly one state store update. Every failure
// resolves to retry-later or unavailable-now; nothing propagates out.
func (c *Coordinator) runCycle(ctx context.Context, trigger Trigger) {
  defer c.sched.Complete()

  log.Debug().
    Stringer("Device", c.dev).
    Stringer("Trigger", trigger).
    Msg("Starting poll cycle")

  payload, err := c.pollWithRetries(ctx)

  if err == nil {
    var reading device.Reading
    reading, err = c.backend.Decode(c.dev.Addr(), payload)

    if err == nil {
      reading.Rssi = c.lastRssi
      reading.CapturedAt = c.now()

      change := c.store.RecordReading(reading)

      log.Debug().
        Stringer("Device", c.dev).
        Stringer("Reading", reading).
        Stringer("Change", change).
        Msg("Poll cycle succeeded")

      c.notify(change)
      return
    }

    log.Warn().
      Stringer("Device", c.dev).
      Hex("Payload", payload).
      Err(err).
      Msg("Failed to decode frame")
  } else {
    log.Warn().
      Stringer("Device", c.dev).
      Err(err).
      Msg("Poll cycle failed")
  }

  change := c.store.RecordFailure()

  if change == StateChanged {
    log.Warn().
      Stringer("Device", c.dev).
      Int("ConsecutiveFailures", c.store.Snapshot().ConsecutiveFailures).
      Msg("Marking device unavailable, last reading is retained")
  }

  c.notify(change)
}

func (c *Coordinator) pollWithRetries(ctx context.Context) ([]byte, error) {
  for attempt := 0; ; attempt += 1 {
    attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
    payload, err := c.transport.Poll(attemptCtx, c.dev.Addr(), c.backend.Characteristic())
    cancel()

    if err == nil {
      return payload, nil
    }

    action := c.policy.NextAction(err, attempt)

    if !action.Retry {
      return nil, err
    }

    log.Debug().
      Stringer("Device", c.dev).
      Int("Attempt", attempt).
      Dur("Backoff", action.After).
      Err(err).
      Msg("Attempt failed, retrying within cycle")

    select {
    case <-ctx.Done():
      return nil, ctx.Err()
    case <-time.After(action.After):
    }
  }
}

func (c *Coordinator) notify(change Change) {
  if change != StateChanged || c.onChange == nil {
    return
  }

  c.onChange(c.dev.Addr(), c.store.Snapshot())
}
