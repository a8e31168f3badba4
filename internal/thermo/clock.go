package thermo

import (
	"context"
	"fmt"
	"time"
)

// UptimeReader reports the device's seconds since boot.
type UptimeReader interface {
	Uptime(ctx context.Context) (uint32, error)
}

// SyncClock stores now minus the device uptime as the State clock shift so
// that uptime-relative timestamps resolve to wall time. It returns the shift
// written.
func SyncClock(ctx context.Context, src UptimeReader, st *State, now time.Time) (uint32, error) {
	up, err := src.Uptime(ctx)
	if err != nil {
		return 0, fmt.Errorf("thermo: sync clock: %w", err)
	}
	sec := now.Unix()
	if sec < int64(up) {
		return 0, fmt.Errorf("thermo: sync clock: uptime %ds exceeds wall clock", up)
	}
	shift := uint32(sec - int64(up))
	if err := st.TimeShift.Set(ctx, shift, false); err != nil {
		return 0, fmt.Errorf("thermo: sync clock: %w", err)
	}
	return shift, nil
}
