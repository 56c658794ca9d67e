package ble

import "errors"

var (
  // ErrTimeout is returned when an attempt exceeds its wall-clock deadline at
  // any stage: dialing, discovery or waiting for a notification.
  ErrTimeout = errors.New("attempt timed out")

  // ErrUnreachable is returned when the device cannot be dialed at all,
  // typically because it is powered off or out of range.
  ErrUnreachable = errors.New("device unreachable")

  // ErrGatt is returned when a connection was established but characteristic
  // discovery or subscription failed.
  ErrGatt = errors.New("gatt operation failed")

  // ErrNotify is returned when the link dropped while waiting for a
  // notification to be delivered.
  ErrNotify = errors.New("notification delivery failed")

  // ErrNoConnectionSlot is returned when every connection slot of the shared
  // radio budget is in use. The attempt fails fast instead of queueing.
  ErrNoConnectionSlot = errors.New("no connection slot available")
)
