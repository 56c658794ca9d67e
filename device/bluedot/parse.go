package bluedot

import (
  "bytes"
  "encoding/binary"
  "math"
  "net"
  "strings"

  "github.com/bluedot-ble/go-bluedot-poller/device"
  "github.com/bluedot-ble/go-bluedot-poller/utils"
  "github.com/pkg/errors"
)

// BlueDOT notification frame, 20 bytes:
//
//   [0]     probe status (0x00 = connected, 0x03 = disconnected)
//   [1:5]   temperature, little-endian int32, whole degrees in device units
//   [5:9]   alarm setpoint, little-endian int32, device units
//   [9]     alarm silenced
//   [10]    alarm disabled
//   [11]    unit (0x00 = Celsius, 0x01 = Fahrenheit)
//   [12]    reserved
//   [13:19] device MAC address
//   [19]    alarm active
//
// there is no checksum; the embedded MAC is the only integrity anchor.
const (
  frameLength = 20

  probeStatusConnected = 0x00

  unitFahrenheit = 0x01
)

// Parse decodes one notification frame into a Reading. Temperatures are
// converted to Celsius regardless of the unit the device is set to. When peer
// is non-nil, the MAC address embedded in the frame is checked against it.
//
// When the probe is unplugged the device keeps notifying but the temperature
// field free-runs, so the reading carries no temperature at all rather than a
// garbage value.
func Parse(peer net.HardwareAddr, data []byte) (reading device.Reading, err error) {
  if len(data) != frameLength {
    return reading, errors.Wrapf(device.ErrInvalidData,
      "unexpected frame length: %d bytes, want %d", len(data), frameLength)
  }

  if peer != nil {
    mac := data[13:19]

    if !bytes.Equal(mac, peer) && !bytes.Equal(utils.Reverse(mac), []byte(peer)) {
      return reading, errors.Wrapf(device.ErrCorruptedData,
        "peer address (%v) does not match MAC embedded into frame (%x)", peer, mac)
    }
  }

  bo := binary.LittleEndian

  rawTemp := int32(bo.Uint32(data[1:]))
  rawSetpoint := int32(bo.Uint32(data[5:]))
  fahrenheit := data[11] == unitFahrenheit

  reading.ProbeConnected = data[0] == probeStatusConnected
  reading.AlarmSilenced = data[9] != 0
  reading.AlarmDisabled = data[10] != 0
  reading.AlarmActive = data[19] != 0
  reading.AlarmSetpointCelsius = toCelsius(rawSetpoint, fahrenheit)

  if reading.ProbeConnected {
    reading.HasTemperature = true
    reading.TemperatureCelsius = toCelsius(rawTemp, fahrenheit)
  }

  return reading, nil
}

// toCelsius converts a device-unit temperature to Celsius. Fahrenheit values
// are rounded to 0.1 °C so repeated polls of the same device value can't
// oscillate in the reported reading.
func toCelsius(raw int32, fahrenheit bool) float64 {
  if !fahrenheit {
    return float64(raw)
  }

  return math.Round((float64(raw) - 32) * 5 / 9 * 10) / 10
}

// IsBlueDOT reports whether a BLE local name identifies a BlueDOT thermometer.
func IsBlueDOT(name string) bool {
  return strings.HasPrefix(name, "BlueDOT")
}
