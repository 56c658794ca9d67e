package device

import (
  "fmt"
  "strings"
  "time"
)

// Reading is one decoded temperature observation. Produced by a device
// backend's decoder and never mutated afterwards. Temperatures are always
// Celsius regardless of the unit the device is set to display.
type Reading struct {
  TemperatureCelsius float64
  AlarmSetpointCelsius float64

  ProbeConnected bool
  AlarmActive bool
  AlarmSilenced bool
  AlarmDisabled bool

  // HasTemperature is false when the probe is unplugged: the device keeps
  // emitting frames but the temperature field carries no measurement.
  HasTemperature bool

  // Sourced from the transport layer, not the frame: signal strength of the
  // advertisement that preceded the poll and the time the frame was captured.
  Rssi int
  CapturedAt time.Time
}

func (r Reading) String() string {
  fields := []string{
    fmt.Sprintf("ProbeConnected=%v", r.ProbeConnected),
    fmt.Sprintf("AlarmActive=%v", r.AlarmActive),
  }

  if r.HasTemperature {
    fields = append([]string{fmt.Sprintf("Temperature=%.1f°C", r.TemperatureCelsius)}, fields...)
    fields = append(fields, fmt.Sprintf("AlarmSetpoint=%.1f°C", r.AlarmSetpointCelsius))
  }

  if r.Rssi != 0 {
    fields = append(fields, fmt.Sprintf("Rssi=%ddBm", r.Rssi))
  }

  return fmt.Sprintf("Reading[%v]", strings.Join(fields, ","))
}

// Equal compares two readings field-wise, ignoring the capture timestamp.
// Used by the state store so consumers are only notified when a poll actually
// observed something new.
func (r Reading) Equal(other Reading) bool {
  r.CapturedAt = time.Time{}
  other.CapturedAt = time.Time{}

  return r == other
}
