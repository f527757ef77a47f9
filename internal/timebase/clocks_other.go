// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build !linux

package timebase

import "time"

var processStart = time.Now()

// SystemClocks approximates both boot clocks with the process monotonic
// clock on platforms without CLOCK_BOOTTIME.
type SystemClocks struct{}

func (SystemClocks) ElapsedRealtimeNanos() int64 { return int64(time.Since(processStart)) }
func (SystemClocks) UptimeNanos() int64          { return int64(time.Since(processStart)) }
func (SystemClocks) WallClockMillis() int64      { return time.Now().UnixMilli() }
