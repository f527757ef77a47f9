// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"io"
	"os"
	"time"

	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

// ReplayOptions control how a recorded NMEA log is played back.
type ReplayOptions struct {
	// Clock anchors the replayed timestamps. Nil uses the system clock.
	Clock timeutil.Clock
	// Pace delivers each location when its recorded offset from the first
	// one has elapsed, instead of as fast as the file reads.
	Pace bool
}

// NewReplayLocationManager replays a recorded NMEA log file. Location
// timestamps are shifted so the first replayed fix carries the time
// RequestUpdates was called and later fixes keep their recorded spacing;
// a worker therefore treats them as fresh.
func NewReplayLocationManager(path string, opts ReplayOptions) *NMEALocationManager {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	m := NewLocationManager(func() (io.ReadCloser, error) {
		return os.Open(path)
	})
	m.replay = &opts
	return m
}

// replayTiming maps recorded fix times onto the clock of one replay run.
type replayTiming struct {
	clock timeutil.Clock
	pace  bool
	start int64

	first int64
	seen  bool
}

// newReplayTiming starts a run at the current time. Nil for live streams.
func (m *NMEALocationManager) newReplayTiming() *replayTiming {
	if m.replay == nil {
		return nil
	}
	return &replayTiming{
		clock: m.replay.Clock,
		pace:  m.replay.Pace,
		start: timeutil.UnixMillis(m.replay.Clock),
	}
}

// retime shifts ev onto the run's clock and, when pacing, waits until it is
// due. It returns false if stop closed while waiting.
func (r *replayTiming) retime(ev platform.LocationEvent, stop <-chan struct{}) (platform.LocationEvent, bool) {
	recorded := ev.Location.Timestamp
	if !r.seen {
		r.first, r.seen = recorded, true
	}
	due := r.start + (recorded - r.first)
	ev.Location.Timestamp = due

	if r.pace {
		if wait := time.Duration(due-timeutil.UnixMillis(r.clock)) * time.Millisecond; wait > 0 {
			timer := r.clock.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C():
			case <-stop:
				return ev, false
			}
		}
	}
	return ev, true
}
