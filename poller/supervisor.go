package poller

import (
  "context"
  "fmt"
  "net"
  "strings"
  "sync"
  "time"

  "github.com/bluedot-ble/go-bluedot-poller/ble"
  "github.com/bluedot-ble/go-bluedot-poller/device"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"
)

// Scanner delivers raw advertisements from the radio. Implemented by
// *ble.Handle; faked in tests.
type Scanner interface {
  Scan(ctx context.Context, onAdvertisement func(ble.Advertisement)) error
}

// Supervisor owns one poll pipeline per paired device: it creates a
// coordinator on pairing, tears it down on removal and fans scan
// advertisements out to the per-device channels. There is no other registry;
// all lifecycle goes through Add and Remove.
type Supervisor struct {
  transport Transport
  scanner Scanner
  cfg Config
  onChange StateChangedFunc

  mu sync.Mutex
  pipelines map[string]*pipeline
  eg *errgroup.Group
  ctx context.Context
}

type pipeline struct {
  dev device.Device
  coord *Coordinator
  cancel context.CancelFunc
  done chan struct{}
}

func NewSupervisor(
  transport Transport,
  scanner Scanner,
  cfg Config,
  onChange StateChangedFunc,
) *Supervisor {
  return &Supervisor{
    transport: transport,
    scanner: scanner,
    cfg: cfg,
    onChange: onChange,
    pipelines: make(map[string]*pipeline),
  }
}

// Add pairs a device: builds its coordinator and starts its pipeline. The
// pipeline runs until Remove is called or the supervisor's context ends.
func (s *Supervisor) Add(dev device.Device) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.ctx == nil {
    return fmt.Errorf("supervisor has not been started")
  }

  key := pipelineKey(dev.Addr())

  if _, ok := s.pipelines[key]; ok {
    return fmt.Errorf("device %v is already paired", dev)
  }

  coord, err := NewCoordinator(dev, s.transport, s.cfg, s.onChange)

  if err != nil {
    return err
  }

  ctx, cancel := context.WithCancel(s.ctx)

  p := &pipeline{
    dev: dev,
    coord: coord,
    cancel: cancel,
    done: make(chan struct{}),
  }

  s.pipelines[key] = p

  go func() {
    defer close(p.done)
    coord.Run(ctx)
  }()

  log.Info().Stringer("Device", dev).Msg("Paired device, pipeline started")

  return nil
}

// Remove unpairs a device. Cooperative: an in-flight attempt is allowed to
// complete or time out normally, bounded by the per-attempt timeout, before
// the pipeline goroutine exits.
func (s *Supervisor) Remove(addr net.HardwareAddr) {
  key := pipelineKey(addr)

  s.mu.Lock()
  p := s.pipelines[key]
  delete(s.pipelines, key)
  s.mu.Unlock()

  if p == nil {
    return
  }

  p.cancel()
  <-p.done

  log.Info().Stringer("Device", p.dev).Msg("Unpaired device, pipeline torn down")
}

// Start launches the scan loop. All pipelines added afterwards are children
// of the passed context. Returns immediately; use Wait to block until
// shutdown.
func (s *Supervisor) Start(ctx context.Context) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.ctx != nil {
    panic("attempted to call Supervisor.Start() twice")
  }

  eg, egCtx := errgroup.WithContext(ctx)
  s.eg = eg
  s.ctx = egCtx

  eg.Go(func() error {
    return s.scanner.Scan(egCtx, s.dispatch)
  })
}

// Wait blocks until the scan loop ends, then tears down every remaining
// pipeline.
func (s *Supervisor) Wait() error {
  err := s.eg.Wait()

  // tear down any remaining pipelines before returning.
  s.mu.Lock()
  remaining := make([]*pipeline, 0, len(s.pipelines))

  for key, p := range s.pipelines {
    remaining = append(remaining, p)
    delete(s.pipelines, key)
  }
  s.mu.Unlock()

  for _, p := range remaining {
    p.cancel()
    <-p.done
  }

  return err
}

// dispatch routes one raw advertisement to its device pipeline. Runs on the
// scan goroutine: delivery is non-blocking and drops when the pipeline is
// busy, matching the scheduler's drop-not-queue rule.
func (s *Supervisor) dispatch(a ble.Advertisement) {
  addr, err := net.ParseMAC(a.Addr().String())

  if err != nil {
    log.Trace().
      Str("Addr", a.Addr().String()).
      Msg("Ignoring advertisement with unparseable address")
    return
  }

  s.mu.Lock()
  p := s.pipelines[pipelineKey(addr)]
  s.mu.Unlock()

  if p == nil {
    log.Trace().
      Stringer("Addr", addr).
      Str("LocalName", a.LocalName()).
      Msg("Received advertisement from unpaired device")
    return
  }

  log.Trace().
    Stringer("Device", p.dev).
    Int("Rssi", a.RSSI()).
    Hex("ManufacturerData", a.ManufacturerData()).
    Msg("Routing advertisement to pipeline")

  p.coord.Deliver(Advertisement{
    Addr: addr,
    Rssi: a.RSSI(),
    ReceivedAt: time.Now(),
    ManufacturerData: a.ManufacturerData(),
  })
}

// States returns a snapshot of every paired device's state, keyed by device
// name. Read by the metrics collector.
func (s *Supervisor) States() map[string]DeviceState {
  s.mu.Lock()
  defer s.mu.Unlock()

  out := make(map[string]DeviceState, len(s.pipelines))

  for _, p := range s.pipelines {
    out[p.dev.Name()] = p.coord.State()
  }

  return out
}

func pipelineKey(addr net.HardwareAddr) string {
  return strings.ToLower(addr.String())
}
