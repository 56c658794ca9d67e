package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bluedot-ble/go-bluedot-poller/ble"
	"github.com/bluedot-ble/go-bluedot-poller/device"
	"github.com/bluedot-ble/go-bluedot-poller/metrics"
	"github.com/bluedot-ble/go-bluedot-poller/poller"
	"github.com/bluedot-ble/go-bluedot-poller/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Devices", utils.ToZeroLogArray(cfg.Devices)).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Dur("MinPollInterval", cfg.Poll.MinPollInterval).
    Dur("FallbackInterval", cfg.Poll.FallbackInterval).
    Msg("Starting with the specified configuration")

  bleHandle := initBle(cfg)

  registry := prometheus.NewRegistry()
  ble.RegisterMetrics(registry)

  sup := poller.NewSupervisor(bleHandle, bleHandle, cfg.Poll, onStateChanged)

  metrics.RegisterCollector(sup.States, registry)

  ctx, cancel := context.WithCancel(context.Background())
  ctx = ble.WrapContextWithSigHandler(ctx, cancel)

  sup.Start(ctx)

  for _, dev := range cfg.Devices {
    if err := sup.Add(dev); err != nil {
      log.Fatal().Err(err).Stringer("Device", dev).Msg("Failed to start poll pipeline for device")
    }
  }

  go func() {
    err := sup.Wait()

    if err != nil && ctx.Err() == nil {
      log.Fatal().Err(err).Msg("Scan loop terminated unexpectedly")
    }

    log.Info().Msg("All poll pipelines stopped, shutting down")
    os.Exit(0)
  }()

  log.Info().
      Str("ListenAddress", cfg.BindAddress).
      Msg("Starting Prometheus server")

  http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  if err := http.ListenAndServe(cfg.BindAddress, nil); err != nil {
      log.Fatal().Err(err).Msg("Unable to bind on requested address")
  }
}

func initBle(cfg config) *ble.Handle {
  var bleFlags ble.Flags = ble.FlagEnableDeviceAllowList
  deviceAddresses := make([]net.HardwareAddr, len(cfg.Devices))

  for i, dev := range cfg.Devices {
    deviceAddresses[i] = dev.Addr()

    if dev.Flags() & device.FlagRequiresBleActiveScan == device.FlagRequiresBleActiveScan {
      bleFlags |= ble.FlagScanTypeActive
    }
  }

  bleHandle, err := ble.InitWithConnParams(
    cfg.BluetoothDeviceId,
    cfg.BluetoothConnParams,
    bleFlags,
    cfg.ConnectionSlots,
  )

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  err = bleHandle.SetAllowListedAddresses(deviceAddresses)

  if err != nil {
    log.Error().Err(err).Msg("Failed to set device allow list")
  }

  return bleHandle
}

// onStateChanged is the consumer notification hook: it fires synchronously
// with a state store update, and only on an observable change.
func onStateChanged(addr net.HardwareAddr, state poller.DeviceState) {
  ev := log.Info().
    Stringer("Addr", addr).
    Bool("Available", state.Available)

  if state.LastReading != nil {
    ev = ev.
      Stringer("Reading", *state.LastReading).
      Time("LastSeenAt", state.LastSeenAt)
  }

  ev.Msg("Device state changed")
}
