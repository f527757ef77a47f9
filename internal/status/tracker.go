// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package status tracks whether the location provider currently has a fix.
package status

import (
	"sync"
	"time"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

// StaleAfter is how long after the last location update the provider is
// still considered to have a fix.
const StaleAfter = 2 * time.Second

// FixListener is notified about the fix state.
type FixListener interface {
	OnLocationFix()
	OnLocationFixLost()
}

// Tracker holds the HAS_FIX / NO_FIX state. The listener list is owned by
// the caller; Tracker only reads it through the injected accessor.
type Tracker struct {
	clock      timeutil.Clock
	listeners  func() []FixListener
	unregister func()

	mu                 sync.Mutex
	hasFix             bool
	lastLocationUpdate time.Time
	closed             bool
}

// NewTracker creates a tracker in the NO_FIX state. unregister is called by
// Shutdown to detach from the platform status source and may be nil.
func NewTracker(clock timeutil.Clock, listeners func() []FixListener, unregister func()) *Tracker {
	return &Tracker{
		clock:      clock,
		listeners:  listeners,
		unregister: unregister,
	}
}

// HasFix reports the current fix state.
func (t *Tracker) HasFix() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasFix
}

// OnLocationUpdate resets the staleness timer. It does not change the fix
// state by itself.
func (t *Tracker) OnLocationUpdate() {
	t.mu.Lock()
	t.lastLocationUpdate = t.clock.Now()
	t.mu.Unlock()
}

// OnFirstFix forces HAS_FIX and notifies all listeners.
func (t *Tracker) OnFirstFix() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.hasFix = true
	t.lastLocationUpdate = t.clock.Now()
	t.mu.Unlock()

	t.notify(true)
}

// OnSatelliteStatus recomputes the fix state from the staleness window and
// notifies listeners of the current state, flipped or not.
func (t *Tracker) OnSatelliteStatus() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	hasFix := !t.lastLocationUpdate.IsZero() && t.clock.Since(t.lastLocationUpdate) < StaleAfter
	t.hasFix = hasFix
	t.mu.Unlock()

	t.notify(hasFix)
}

func (t *Tracker) notify(hasFix bool) {
	if t.listeners == nil {
		return
	}
	for _, l := range t.listeners() {
		if hasFix {
			l.OnLocationFix()
		} else {
			l.OnLocationFixLost()
		}
	}
}

// Shutdown detaches from the status source. Callers invoke it exactly once;
// later status events are ignored.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		monitoring.Logf("status: WARNING: tracker shut down twice")
		return
	}
	t.closed = true
	t.mu.Unlock()

	if t.unregister != nil {
		t.unregister()
	}
}
