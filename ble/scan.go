package ble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
)

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
	return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and deliver every advertisement found,
// including duplicates from the same peer. The callback runs on the scan
// goroutine and must not block; callers routing advertisements to pollers
// should enqueue and return.
func (h *Handle) Scan(ctx context.Context, onAdvertisement func(Advertisement)) error {
	err := h.dev.Scan(ctx, true, onAdvertisement)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to scan: %w", err)
	}

	return nil
}
