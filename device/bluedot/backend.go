package bluedot

import (
  "net"

  "github.com/bluedot-ble/go-bluedot-poller/ble"
  "github.com/bluedot-ble/go-bluedot-poller/device"
)

// GATT characteristic carrying BlueDOT temperature notifications.
const CharacteristicUUID = "783f2991-23e0-4bdc-ac16-78601bd84b39"

var characteristicUUID = ble.MustParseUUID(CharacteristicUUID)

type backendNotify struct {}

func (b backendNotify) Characteristic() ble.UUID {
  return characteristicUUID
}

func (b backendNotify) Decode(peer net.HardwareAddr, payload []byte) (device.Reading, error) {
  return Parse(peer, payload)
}
