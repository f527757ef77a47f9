// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build linux

package timebase

import (
	"time"

	"golang.org/x/sys/unix"
)

// SystemClocks reads CLOCK_BOOTTIME, CLOCK_MONOTONIC and the wall clock.
type SystemClocks struct{}

func (SystemClocks) ElapsedRealtimeNanos() int64 { return clockNanos(unix.CLOCK_BOOTTIME) }
func (SystemClocks) UptimeNanos() int64          { return clockNanos(unix.CLOCK_MONOTONIC) }
func (SystemClocks) WallClockMillis() int64      { return time.Now().UnixMilli() }

func clockNanos(id int32) int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}
