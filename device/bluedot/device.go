package bluedot

import (
  "fmt"
  "net"

  "github.com/bluedot-ble/go-bluedot-poller/device"
)

type Device struct {
  name string
  addr net.HardwareAddr
  backend device.Backend
}

func (d *Device) Name() string {
  return d.name
}

func (d *Device) Addr() net.HardwareAddr {
  return d.addr
}

func (d *Device) Flags() device.Flags {
  // the "BlueDOT" local name only appears in scan responses.
  return device.FlagRequiresBleActiveScan
}

func (d *Device) Backend() device.Backend {
  return d.backend
}

func (d *Device) String() string {
  return fmt.Sprintf("bluedot[name=%q, addr=%v]", d.name, d.addr.String())
}
