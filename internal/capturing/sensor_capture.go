// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package capturing

import (
	"fmt"
	"time"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/platform"
)

const (
	// maxReportLatency lets the platform batch motion readings. It trades
	// power for delivery latency and is only a hint.
	maxReportLatency = 500 * time.Millisecond

	// barometerPeriod is the platform's "normal" rate. Barometers are slow
	// and oversampling them only costs battery.
	barometerPeriod = 200 * time.Millisecond
)

// SensorCapture decides whether and how motion sensors are registered.
type SensorCapture interface {
	Register(sm platform.SensorManager, h platform.Handler) error
	Unregister(sm platform.SensorManager) error
}

// EnabledSensorCapture registers accelerometer, gyroscope and magnetometer at
// FrequencyHz and the barometer at its normal rate. Absent sensors are
// skipped.
type EnabledSensorCapture struct {
	FrequencyHz int
}

// SamplingPeriod converts the desired frequency into the registration
// period (1_000_000 / hz microseconds).
func (c EnabledSensorCapture) SamplingPeriod() time.Duration {
	return time.Duration(1_000_000/c.FrequencyHz) * time.Microsecond
}

func (c EnabledSensorCapture) Register(sm platform.SensorManager, h platform.Handler) error {
	if c.FrequencyHz <= 0 || c.FrequencyHz > 1_000_000 {
		return fmt.Errorf("invalid sensor frequency %d Hz", c.FrequencyHz)
	}
	period := c.SamplingPeriod()

	for _, t := range []platform.SensorType{platform.Accelerometer, platform.Gyroscope, platform.Magnetometer} {
		if !sm.HasSensor(t) {
			monitoring.Logf("capturing: WARNING: no %s available, continuing without it", t)
			continue
		}
		if err := sm.Register(t, period, maxReportLatency, h); err != nil {
			return fmt.Errorf("register %s: %w", t, err)
		}
	}

	if !sm.HasSensor(platform.Barometer) {
		monitoring.Logf("capturing: no barometer available")
		return nil
	}
	if err := sm.Register(platform.Barometer, barometerPeriod, maxReportLatency, h); err != nil {
		return fmt.Errorf("register %s: %w", platform.Barometer, err)
	}
	return nil
}

func (c EnabledSensorCapture) Unregister(sm platform.SensorManager) error {
	return sm.UnregisterAll()
}

// DisabledSensorCapture captures locations only.
type DisabledSensorCapture struct{}

func (DisabledSensorCapture) Register(platform.SensorManager, platform.Handler) error { return nil }
func (DisabledSensorCapture) Unregister(platform.SensorManager) error                 { return nil }
