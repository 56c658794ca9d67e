package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bluedot-ble/go-bluedot-poller/ble"
	"github.com/bluedot-ble/go-bluedot-poller/device"
	"github.com/bluedot-ble/go-bluedot-poller/device/bluedot"
	"github.com/bluedot-ble/go-bluedot-poller/poller"
)

type config struct {
  Debug, Trace bool
  BindAddress string
  DiscoverDevices bool
  BluetoothDeviceId int
  BluetoothConnParams ble.ConnParams
  ConnectionSlots int
  Poll poller.Config
  Devices []device.Device
}

type boundDeviceList struct {
  device.Factory
  name string
  list *[]device.Device
}

var deviceFactories = map[string]device.Factory {
  "bluedot": &bluedot.Factory{},
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  ds := device.NewDeviceSpec(v)

  device, err := d.FromSpec(ds)
  if err != nil {
    return fmt.Errorf("failed to create device: %w", err)
  }

  *d.list = append(*d.list, device)

  return nil
}

func ParseArgs() config {
  var cfg config

  cfg.BluetoothConnParams = ble.ConnParamsPowerSaving

  flag.StringVar(&cfg.BindAddress, "bind", "localhost:9103", "Where the metrics endpoint will bind to")
  flag.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  flag.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params", "Bluetooth connection parameters (one of 'default' or 'power-saving')")
  flag.IntVar(&cfg.ConnectionSlots, "connection-slots", ble.DefaultConnectionSlots,
    "Concurrent BLE connection budget shared by all devices")
  flag.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover available BLE devices and quit")
  flag.DurationVar(&cfg.Poll.MinPollInterval, "min-poll-interval", poller.DefaultMinPollInterval,
    "Minimum time between advertisement-driven polls of the same device")
  flag.DurationVar(&cfg.Poll.FallbackInterval, "fallback-interval", poller.DefaultFallbackInterval,
    "How often the fallback timer polls regardless of advertisements")
  flag.DurationVar(&cfg.Poll.AttemptTimeout, "attempt-timeout", poller.DefaultAttemptTimeout,
    "Wall-clock timeout for one connect-and-read attempt")
  flag.IntVar(&cfg.Poll.MaxRetries, "max-retries", poller.DefaultMaxRetries,
    "Max number of retries for transient failures within one poll cycle")
  flag.DurationVar(&cfg.Poll.BackoffFactor, "backoff", poller.DefaultBackoffFactor,
    "Exponential backoff factor for in-cycle retries")
  flag.IntVar(&cfg.Poll.FailureThreshold, "failure-threshold", poller.DefaultFailureThreshold,
    "Consecutive failed poll cycles before a device is marked unavailable")
  flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  flag.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  for deviceName, deviceFactory := range deviceFactories {
    boundList := boundDeviceList{
      name:    deviceName,
      Factory: deviceFactory,
      list:    &cfg.Devices,
    }

    help := "Device spec for this device in the form of `key=value,key=value`."

    if docs, ok := deviceFactory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    flag.Var(&boundList, deviceName, help)
  }

  flag.Parse()

  if !cfg.DiscoverDevices && len(cfg.Devices) == 0 {
    fmt.Fprintln(os.Stderr, "Error: at least one device is required!")
    flag.Usage()
    os.Exit(1)
  }

  if err := cfg.Poll.Validate(); err != nil {
    fmt.Fprintf(os.Stderr, "Error: %v\n", err)
    flag.Usage()
    os.Exit(1)
  }

  if cfg.ConnectionSlots < 1 {
    fmt.Fprintln(os.Stderr, "Error: connection slots must be at least 1!")
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}
