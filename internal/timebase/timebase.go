// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package timebase converts monotonic sensor event timestamps into Unix epoch
// milliseconds.
package timebase

import (
	"sync"

	"github.com/relabs-tech/trip_capture/internal/capterr"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// Clocks samples the three clock bases a sensor driver might have used for
// its event timestamps.
type Clocks interface {
	// ElapsedRealtimeNanos is the time since boot, including suspend.
	ElapsedRealtimeNanos() int64
	// UptimeNanos is the time since boot, excluding suspend.
	UptimeNanos() int64
	// WallClockMillis is the current Unix time in milliseconds.
	WallClockMillis() int64
}

const delayWarningMillis = 1000

// Normalizer computes the event time offset once, on the first event of a
// capture session, and reuses it for every later event.
type Normalizer struct {
	clocks Clocks

	mu     sync.Mutex
	offset *int64
}

// NewNormalizer returns a Normalizer reading the given clocks.
func NewNormalizer(clocks Clocks) *Normalizer {
	return &Normalizer{clocks: clocks}
}

// Normalize converts a raw event timestamp in nanoseconds into Unix epoch
// milliseconds. It fails with a ConfigurationError when the event clock can
// not be corrected with a static offset.
func (n *Normalizer) Normalize(rawNanos int64) (int64, error) {
	offset, err := n.Offset(rawNanos)
	if err != nil {
		return 0, err
	}
	return offset + rawNanos/1_000_000, nil
}

// Offset returns the memoized offset, computing it from rawNanos on the
// first call.
func (n *Normalizer) Offset(rawNanos int64) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.offset != nil {
		return *n.offset, nil
	}
	offset, err := ComputeOffset(rawNanos, n.clocks)
	if err != nil {
		return 0, err
	}
	n.offset = &offset
	return offset, nil
}

// ComputeOffset picks the clock basis that best explains rawNanos.
//
// The documented basis is elapsed-since-boot and wins ties. Some vendors
// stamp events with wall-clock time, which needs no offset. A basis of
// uptime-since-last-sleep shifts after every suspend and is rejected.
func ComputeOffset(rawNanos int64, clocks Clocks) (int64, error) {
	elapsedMillis := clocks.ElapsedRealtimeNanos() / 1_000_000
	uptimeMillis := clocks.UptimeNanos() / 1_000_000
	wallMillis := clocks.WallClockMillis()
	eventMillis := rawNanos / 1_000_000

	elapsedDiff := abs(elapsedMillis - eventMillis)
	uptimeDiff := abs(uptimeMillis - eventMillis)
	wallDiff := abs(wallMillis - eventMillis)

	if min(wallDiff, elapsedDiff) >= delayWarningMillis {
		monitoring.Logf("timebase: WARNING: sensor event delay above 1 second (elapsed %d ms, wall %d ms)", elapsedDiff, wallDiff)
	}

	switch {
	case elapsedDiff <= min(uptimeDiff, wallDiff):
		return wallMillis - elapsedMillis, nil
	case wallDiff <= uptimeDiff:
		return 0, nil
	default:
		return 0, capterr.Configuration("sensor event time is relative to the last sleep and cannot be corrected")
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
