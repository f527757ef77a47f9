// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package power models the process-wide resources a capture keeps alive:
// the wake lock and the ongoing-capture notification.
package power

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// WakeLock keeps the device from suspending while held.
type WakeLock interface {
	Acquire()
	Release()
	Held() bool
}

// CountingWakeLock is a WakeLock that tracks acquire/release balance. It is
// what the worker uses on hosts without a suspend facility and what tests
// use to check that acquire and release stay paired.
type CountingWakeLock struct {
	mu       sync.Mutex
	held     int
	acquires int
	releases int
}

func (l *CountingWakeLock) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held++
	l.acquires++
	if l.held > 1 {
		monitoring.Logf("power: WARNING: wake lock acquired %d times", l.held)
	}
}

func (l *CountingWakeLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == 0 {
		monitoring.Logf("power: WARNING: release of a wake lock that is not held")
		return
	}
	l.held--
	l.releases++
}

func (l *CountingWakeLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held > 0
}

// Counts returns how often the lock was acquired and released.
func (l *CountingWakeLock) Counts() (acquires, releases int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquires, l.releases
}

// Notification is the user-visible ongoing-capture indicator.
type Notification struct {
	ChannelID     string `json:"channel_id"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	Ongoing       bool   `json:"ongoing"`
	MeasurementID int64  `json:"measurement_id,omitempty"`
}

// Notifier shows and dismisses the ongoing-capture notification.
type Notifier interface {
	Show(n Notification) error
	Dismiss(channelID string) error
}

// BusNotifier publishes notifications on the broadcast bus so any UI
// process can render them.
type BusNotifier struct {
	Bus   broadcast.Bus
	Topic string
}

func (n BusNotifier) Show(note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("power: marshal notification: %w", err)
	}
	return n.Bus.Publish(n.Topic, payload)
}

func (n BusNotifier) Dismiss(channelID string) error {
	payload, err := json.Marshal(Notification{ChannelID: channelID})
	if err != nil {
		return fmt.Errorf("power: marshal notification: %w", err)
	}
	return n.Bus.Publish(n.Topic, payload)
}
