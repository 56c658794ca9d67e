package ble

import (
	"context"
	"net"
	"strings"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedot_poller_ble_successful_connections_total",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedot_poller_ble_failed_connections_total",
	})
	notificationsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedot_poller_ble_notifications_total",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedot_poller_ble_disconnections_total",
	})
	slotExhaustionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedot_poller_ble_slot_exhaustions_total",
	})
)

// Poll performs one connect-per-poll read: acquire a connection slot, dial the
// device, subscribe to the notification characteristic, wait for exactly one
// notification and tear the connection down. The connection is released on
// every exit path; no connection is ever held open between polls.
//
// The passed context bounds the whole attempt. On expiry the in-flight
// operation is canceled and ErrTimeout is returned after cleanup.
func (h *Handle) Poll(
	ctx context.Context,
	addr net.HardwareAddr,
	char UUID,
) (payload []byte, err error) {
	if !h.slots.TryAcquire(1) {
		slotExhaustionsCounter.Inc()
		return nil, errors.Wrapf(ErrNoConnectionSlot, "polling %v", addr)
	}

	defer h.slots.Release(1)

	log.Trace().
		Stringer("Addr", addr).
		Stringer("Characteristic", char).
		Msg("ble: dialing device for poll")

	cli, err := ble.Dial(ctx, addr)

	if err != nil {
		failedConnectionsCounter.Inc()

		if ctx.Err() != nil {
			return nil, errors.Wrapf(ErrTimeout, "dialing %v", addr)
		}

		return nil, errors.Wrapf(ErrUnreachable, "dialing %v: %v", addr, err)
	}

	successfulConnectionsCounter.Inc()

	defer func() {
		if err := cli.CancelConnection(); err != nil {
			log.Debug().Err(err).Stringer("Addr", addr).Msg("ble: error during disconnect")
		}

		disconnectsCounter.Inc()
	}()

	c, err := h.resolveCharacteristic(cli, addr, char)

	if err != nil {
		return nil, err
	}

	notifyCh := make(chan []byte, 1)

	err = cli.Subscribe(c, false, func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)

		select {
		case notifyCh <- buf:
		default:
			// a notification is already pending; we only ever consume one.
		}
	})

	if err != nil {
		// the cached handle may be stale after a firmware update; force a
		// fresh discovery on the next attempt.
		h.evictCharacteristic(addr, char)

		return nil, errors.Wrapf(ErrGatt, "subscribing to %v on %v: %v", char, addr, err)
	}

	defer func() {
		if err := cli.Unsubscribe(c, false); err != nil {
			log.Debug().Err(err).Stringer("Addr", addr).Msg("ble: error stopping notifications")
		}
	}()

	select {
	case payload = <-notifyCh:
		notificationsCounter.Inc()

		log.Trace().
			Stringer("Addr", addr).
			Hex("Payload", payload).
			Msg("ble: received notification")

		return payload, nil
	case <-cli.Disconnected():
		return nil, errors.Wrapf(ErrNotify, "link to %v dropped while waiting for notification", addr)
	case <-ctx.Done():
		return nil, errors.Wrapf(ErrTimeout, "waiting for notification from %v", addr)
	}
}

func charKey(addr net.HardwareAddr, char UUID) string {
	return strings.ToLower(addr.String()) + "/" + char.String()
}

// resolveCharacteristic finds the target characteristic on the peer. fast
// path: reuse the characteristic resolved by a previous discovery (attribute
// handles are stable across connections). slow path: full profile discovery.
func (h *Handle) resolveCharacteristic(
	cli Client,
	addr net.HardwareAddr,
	char UUID,
) (*Characteristic, error) {
	key := charKey(addr, char)

	h.charMu.Lock()
	cached := h.chars[key]
	h.charMu.Unlock()

	if cached != nil {
		return cached, nil
	}

	log.Debug().
		Stringer("Addr", addr).
		Stringer("Characteristic", char).
		Msg("ble: no cached characteristic, running profile discovery")

	p, err := cli.DiscoverProfile(false)

	if err != nil {
		return nil, errors.Wrapf(ErrGatt, "discovering profile of %v: %v", addr, err)
	}

	for _, svc := range p.Services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(char) {
				h.charMu.Lock()
				h.chars[key] = c
				h.charMu.Unlock()

				return c, nil
			}
		}
	}

	return nil, errors.Wrapf(ErrGatt, "device %v does not expose characteristic %v", addr, char)
}

func (h *Handle) evictCharacteristic(addr net.HardwareAddr, char UUID) {
	h.charMu.Lock()
	defer h.charMu.Unlock()

	delete(h.chars, charKey(addr, char))
}
