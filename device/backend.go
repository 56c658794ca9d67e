package device

import (
	"net"

	"github.com/bluedot-ble/go-bluedot-poller/ble"
)

// NotifyBackend represents a device whose data is read by connecting,
// subscribing to a GATT characteristic and awaiting one notification frame.
// The backend is selected once at setup time; the poll pipeline is generic
// over it and never inspects the device model afterwards.
type NotifyBackend interface {
	// Characteristic returns the UUID of the characteristic carrying the
	// device's telemetry notifications.
	Characteristic() ble.UUID

	// Decode turns one raw notification payload into a Reading. Pure: no I/O,
	// identical input always yields an identical result. The peer address is
	// used for integrity checks against identifiers embedded in the frame and
	// may be nil to skip them.
	Decode(peer net.HardwareAddr, payload []byte) (Reading, error)
}

type Backend any
