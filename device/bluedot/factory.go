package bluedot

import (
  "fmt"
  "net"
  "strings"

  "github.com/bluedot-ble/go-bluedot-poller/device"
)

type Factory struct{}

func (f *Factory) FromSpec(spec device.DeviceSpec) (device.Device, error) {
  d := Device{}

  addr := spec.Addr()

  if name := spec.Name(); name != "" {
    d.name = name
  } else {
    d.name = "bluedot-" + strings.ToLower(strings.ReplaceAll(addr, ":", ""))
  }

  hwAddr, err := net.ParseMAC(addr)
  if err != nil {
    return nil, fmt.Errorf("invalid addr: %w", err)
  }

  d.addr = hwAddr
  d.backend = backendNotify{}

  return &d, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this BlueDOT device
name (string): Name of this BlueDOT device`
}
