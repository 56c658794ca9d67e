package bluedot_test

import (
  "encoding/binary"
  "errors"
  "math"
  "net"
  "reflect"
  "testing"

  "github.com/bluedot-ble/go-bluedot-poller/device"
  "github.com/bluedot-ble/go-bluedot-poller/device/bluedot"
)

var testAddr = net.HardwareAddr{0x28, 0xec, 0x9a, 0x2e, 0x65, 0xd7}

type frameOptions struct {
  probeStatus byte
  temperature int32
  setpoint int32
  silenced byte
  disabled byte
  unit byte
  mac net.HardwareAddr
  alarmActive byte
}

func buildFrame(o frameOptions) []byte {
  frame := make([]byte, 20)

  frame[0] = o.probeStatus
  binary.LittleEndian.PutUint32(frame[1:], uint32(o.temperature))
  binary.LittleEndian.PutUint32(frame[5:], uint32(o.setpoint))
  frame[9] = o.silenced
  frame[10] = o.disabled
  frame[11] = o.unit
  copy(frame[13:19], o.mac)
  frame[19] = o.alarmActive

  return frame
}

func TestParse_CelsiusFrame(t *testing.T) {
  frame := buildFrame(frameOptions{
    temperature: 57,
    setpoint: 74,
    mac: testAddr,
  })

  got, err := bluedot.Parse(testAddr, frame)

  if err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }

  want := device.Reading{
    TemperatureCelsius: 57,
    AlarmSetpointCelsius: 74,
    ProbeConnected: true,
    HasTemperature: true,
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Parse(%x): got %+#v, wanted %+#v", frame, got, want)
  }
}

func TestParse_FahrenheitFrameIsConverted(t *testing.T) {
  frame := buildFrame(frameOptions{
    temperature: 165,
    setpoint: 203,
    unit: 0x01,
    mac: testAddr,
  })

  got, err := bluedot.Parse(testAddr, frame)

  if err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }

  // (165 - 32) * 5/9 = 73.888..., carried at 0.1 °C resolution.
  if math.Abs(got.TemperatureCelsius - 73.9) > 1e-9 {
    t.Errorf("Parse(%x): got temperature %v, wanted 73.9", frame, got.TemperatureCelsius)
  }

  if math.Abs(got.AlarmSetpointCelsius - 95.0) > 1e-9 {
    t.Errorf("Parse(%x): got setpoint %v, wanted 95.0", frame, got.AlarmSetpointCelsius)
  }
}

func TestParse_NegativeTemperature(t *testing.T) {
  frame := buildFrame(frameOptions{
    temperature: -18,
    setpoint: 4,
    mac: testAddr,
  })

  got, err := bluedot.Parse(testAddr, frame)

  if err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }

  if got.TemperatureCelsius != -18 {
    t.Errorf("Parse(%x): got temperature %v, wanted -18", frame, got.TemperatureCelsius)
  }
}

func TestParse_ProbeDisconnectedHasNoTemperature(t *testing.T) {
  frame := buildFrame(frameOptions{
    probeStatus: 0x03,
    temperature: 3529, // free-running garbage from a real capture
    setpoint: 74,
    mac: testAddr,
  })

  got, err := bluedot.Parse(testAddr, frame)

  if err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }

  want := device.Reading{
    AlarmSetpointCelsius: 74,
    ProbeConnected: false,
    HasTemperature: false,
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Parse(%x): got %+#v, wanted %+#v", frame, got, want)
  }
}

func TestParse_AlarmFlags(t *testing.T) {
  frame := buildFrame(frameOptions{
    temperature: 102,
    setpoint: 95,
    silenced: 0x01,
    mac: testAddr,
    alarmActive: 0x01,
  })

  got, err := bluedot.Parse(testAddr, frame)

  if err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }

  if !got.AlarmActive || !got.AlarmSilenced || got.AlarmDisabled {
    t.Fatalf("Parse(%x): got %+#v, wanted active+silenced, not disabled", frame, got)
  }
}

func TestParse_WrongLength(t *testing.T) {
  // frames are exactly 20 bytes; anything else is rejected, trailing
  // garbage included.
  for _, size := range []int{0, 1, 7, 19, 21, 40} {
    frame := make([]byte, size)

    _, err := bluedot.Parse(testAddr, frame)

    if !errors.Is(err, device.ErrInvalidData) {
      t.Errorf("Parse(%d-byte frame): got %v, wanted ErrInvalidData", size, err)
    }
  }
}

func TestParse_EmbeddedMacMismatch(t *testing.T) {
  frame := buildFrame(frameOptions{
    temperature: 57,
    setpoint: 74,
    mac: net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01},
  })

  _, err := bluedot.Parse(testAddr, frame)

  if !errors.Is(err, device.ErrCorruptedData) {
    t.Fatalf("Parse(%x): got %v, wanted ErrCorruptedData", frame, err)
  }
}

func TestParse_EmbeddedMacReversed(t *testing.T) {
  reversed := net.HardwareAddr{0xd7, 0x65, 0x2e, 0x9a, 0xec, 0x28}

  frame := buildFrame(frameOptions{
    temperature: 57,
    setpoint: 74,
    mac: reversed,
  })

  if _, err := bluedot.Parse(testAddr, frame); err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }
}

func TestParse_NilPeerSkipsMacCheck(t *testing.T) {
  frame := buildFrame(frameOptions{
    temperature: 57,
    setpoint: 74,
    mac: net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01},
  })

  if _, err := bluedot.Parse(nil, frame); err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }
}

func TestParse_Deterministic(t *testing.T) {
  frame := buildFrame(frameOptions{
    temperature: 165,
    setpoint: 203,
    unit: 0x01,
    mac: testAddr,
  })

  first, err := bluedot.Parse(testAddr, frame)

  if err != nil {
    t.Fatalf("Parse(%x) got error: %v", frame, err)
  }

  second, _ := bluedot.Parse(testAddr, frame)

  if !reflect.DeepEqual(first, second) {
    t.Fatalf("Parse(%x) is not deterministic: %+#v != %+#v", frame, first, second)
  }
}

func TestIsBlueDOT(t *testing.T) {
  cases := map[string]bool{
    "BlueDOT": true,
    "BlueDOT-1234": true,
    "bluedot": false,
    "Inkbird": false,
    "": false,
  }

  for name, want := range cases {
    if got := bluedot.IsBlueDOT(name); got != want {
      t.Errorf("IsBlueDOT(%q): got %v, wanted %v", name, got, want)
    }
  }
}
