// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package platform describes the location and motion sensor subsystems the
// capture core registers with. Hardware backends live in internal/gps and
// internal/sensors; internal/platform/sim provides a scripted one.
package platform

import (
	"fmt"
	"time"

	"github.com/relabs-tech/trip_capture/internal/model"
)

// SensorType is the closed set of motion and environment sensors.
type SensorType int

const (
	Accelerometer SensorType = iota + 1
	Gyroscope
	Magnetometer
	Barometer
)

func (t SensorType) String() string {
	switch t {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	case Magnetometer:
		return "magnetometer"
	case Barometer:
		return "barometer"
	}
	return fmt.Sprintf("sensor(%d)", int(t))
}

// Event is one callback from a platform subsystem. The set of variants is
// closed: SensorEvent, LocationEvent, SatelliteStatusEvent, FirstFixEvent.
type Event interface {
	isEvent()
}

// SensorEvent carries one reading. TimestampNanos uses the sensor's own
// monotonic clock and must be normalized before use.
type SensorEvent struct {
	Sensor         SensorType
	TimestampNanos int64
	Values         []float64
}

// LocationEvent carries one location update. Timestamp is already Unix
// epoch milliseconds.
type LocationEvent struct {
	Location model.GeoLocation
}

// SatelliteStatusEvent signals that the satellite constellation status
// changed.
type SatelliteStatusEvent struct {
	SatellitesInView int
}

// FirstFixEvent signals that the provider acquired its first fix.
type FirstFixEvent struct{}

func (SensorEvent) isEvent()          {}
func (LocationEvent) isEvent()        {}
func (SatelliteStatusEvent) isEvent() {}
func (FirstFixEvent) isEvent()        {}

// Handler receives platform events. Implementations must not block for long;
// the platform may deliver from its own reader goroutine.
type Handler func(Event)

// LocationManager delivers LocationEvent, SatelliteStatusEvent and
// FirstFixEvent.
type LocationManager interface {
	RequestUpdates(h Handler) error
	RemoveUpdates() error
}

// SensorManager delivers SensorEvent for registered sensors.
type SensorManager interface {
	HasSensor(t SensorType) bool
	// Register subscribes h to t. samplingPeriod is the desired interval
	// between readings; maxReportLatency is a batching hint.
	Register(t SensorType, samplingPeriod, maxReportLatency time.Duration, h Handler) error
	UnregisterAll() error
}

// PermissionChecker reports whether the process may read the location
// subsystem.
type PermissionChecker interface {
	HasLocationPermission() bool
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func() bool

func (f PermissionFunc) HasLocationPermission() bool { return f() }
