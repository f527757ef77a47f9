// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim is a scripted platform: tests and replay tools push events
// through it instead of real hardware.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/platform"
)

// ErrNotRegistered is returned by Emit helpers when nobody listens.
var ErrNotRegistered = errors.New("sim: no handler registered")

// LocationManager is a scripted platform.LocationManager.
type LocationManager struct {
	mu      sync.Mutex
	handler platform.Handler
	removed int
}

func NewLocationManager() *LocationManager {
	return &LocationManager{}
}

func (m *LocationManager) RequestUpdates(h platform.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	return nil
}

func (m *LocationManager) RemoveUpdates() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = nil
	m.removed++
	return nil
}

// Registered reports whether a handler is currently subscribed.
func (m *LocationManager) Registered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler != nil
}

// Removed counts RemoveUpdates calls.
func (m *LocationManager) Removed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed
}

func (m *LocationManager) emit(ev platform.Event) error {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return ErrNotRegistered
	}
	h(ev)
	return nil
}

// EmitLocation delivers a location update.
func (m *LocationManager) EmitLocation(loc model.GeoLocation) error {
	return m.emit(platform.LocationEvent{Location: loc})
}

// EmitFirstFix delivers a first-fix event.
func (m *LocationManager) EmitFirstFix() error {
	return m.emit(platform.FirstFixEvent{})
}

// EmitSatelliteStatus delivers a satellite status update.
func (m *LocationManager) EmitSatelliteStatus(inView int) error {
	return m.emit(platform.SatelliteStatusEvent{SatellitesInView: inView})
}

// Registration records one SensorManager.Register call.
type Registration struct {
	Sensor           platform.SensorType
	SamplingPeriod   time.Duration
	MaxReportLatency time.Duration
}

// SensorManager is a scripted platform.SensorManager. Sensors not listed in
// NewSensorManager are reported absent.
type SensorManager struct {
	mu            sync.Mutex
	available     map[platform.SensorType]bool
	handlers      map[platform.SensorType]platform.Handler
	registrations []Registration
	unregistered  int
}

// NewSensorManager creates a manager offering the given sensors, or all four
// when none are given.
func NewSensorManager(available ...platform.SensorType) *SensorManager {
	if len(available) == 0 {
		available = []platform.SensorType{platform.Accelerometer, platform.Gyroscope, platform.Magnetometer, platform.Barometer}
	}
	m := &SensorManager{
		available: make(map[platform.SensorType]bool),
		handlers:  make(map[platform.SensorType]platform.Handler),
	}
	for _, t := range available {
		m.available[t] = true
	}
	return m
}

func (m *SensorManager) HasSensor(t platform.SensorType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available[t]
}

func (m *SensorManager) Register(t platform.SensorType, samplingPeriod, maxReportLatency time.Duration, h platform.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available[t] {
		return errors.New("sim: sensor not available: " + t.String())
	}
	m.handlers[t] = h
	m.registrations = append(m.registrations, Registration{Sensor: t, SamplingPeriod: samplingPeriod, MaxReportLatency: maxReportLatency})
	return nil
}

func (m *SensorManager) UnregisterAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[platform.SensorType]platform.Handler)
	m.unregistered++
	return nil
}

// Registrations returns a copy of all Register calls so far.
func (m *SensorManager) Registrations() []Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Registration(nil), m.registrations...)
}

// Unregistered counts UnregisterAll calls.
func (m *SensorManager) Unregistered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unregistered
}

// Emit delivers a reading from sensor t.
func (m *SensorManager) Emit(t platform.SensorType, timestampNanos int64, values ...float64) error {
	m.mu.Lock()
	h := m.handlers[t]
	m.mu.Unlock()
	if h == nil {
		return ErrNotRegistered
	}
	h(platform.SensorEvent{Sensor: t, TimestampNanos: timestampNanos, Values: values})
	return nil
}

// Clocks is a settable timebase.Clocks.
type Clocks struct {
	mu                    sync.Mutex
	ElapsedNanos, UpNanos int64
	WallMillis            int64
}

func (c *Clocks) ElapsedRealtimeNanos() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ElapsedNanos
}

func (c *Clocks) UptimeNanos() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.UpNanos
}

func (c *Clocks) WallClockMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WallMillis
}
