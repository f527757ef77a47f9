// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors is the motion and environment backend of the capture
// core. Sensors without a hardware FIFO are polled at the registered
// sampling period and reported as platform sensor events.
package sensors

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/timebase"
)

// ErrNoSensor is returned when registering a sensor the board lacks.
var ErrNoSensor = errors.New("sensors: sensor not available")

// Reader returns one reading in platform units: m/s² for the
// accelerometer, rad/s for the gyroscope, µT for the magnetometer and hPa
// for the barometer.
type Reader func() ([]float64, error)

// PollingSensorManager is a platform.SensorManager over polled readers.
// Event timestamps come from the elapsed-realtime clock.
type PollingSensorManager struct {
	readers map[platform.SensorType]Reader
	clocks  timebase.Clocks
	closers []func() error

	mu    sync.Mutex
	stops []chan struct{}
	wg    sync.WaitGroup
}

// NewPollingSensorManager returns a manager offering the sensors in
// readers. A nil clocks uses the system clocks.
func NewPollingSensorManager(readers map[platform.SensorType]Reader, clocks timebase.Clocks) *PollingSensorManager {
	if clocks == nil {
		clocks = timebase.SystemClocks{}
	}
	return &PollingSensorManager{readers: readers, clocks: clocks}
}

func (m *PollingSensorManager) HasSensor(t platform.SensorType) bool {
	_, ok := m.readers[t]
	return ok
}

// Register polls t every samplingPeriod. maxReportLatency is ignored, each
// reading is delivered as soon as it was taken.
func (m *PollingSensorManager) Register(t platform.SensorType, samplingPeriod, _ time.Duration, h platform.Handler) error {
	read, ok := m.readers[t]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSensor, t)
	}
	if samplingPeriod <= 0 {
		return fmt.Errorf("sensors: invalid sampling period %v for %s", samplingPeriod, t)
	}

	stop := make(chan struct{})
	m.mu.Lock()
	m.stops = append(m.stops, stop)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.poll(t, samplingPeriod, read, h, stop)
	return nil
}

func (m *PollingSensorManager) poll(t platform.SensorType, period time.Duration, read Reader, h platform.Handler, stop chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		values, err := read()
		if err != nil {
			// log the first failure of a run only
			if !failing {
				monitoring.Logf("sensors: WARNING: %s read error: %v", t, err)
			}
			failing = true
			continue
		}
		failing = false
		h(platform.SensorEvent{Sensor: t, TimestampNanos: m.clocks.ElapsedRealtimeNanos(), Values: values})
	}
}

// UnregisterAll stops every poller and returns once none of them can call
// its handler any more.
func (m *PollingSensorManager) UnregisterAll() error {
	m.mu.Lock()
	stops := m.stops
	m.stops = nil
	m.mu.Unlock()
	for _, stop := range stops {
		close(stop)
	}
	m.wg.Wait()
	return nil
}

// Close unregisters everything and releases the devices.
func (m *PollingSensorManager) Close() error {
	err := m.UnregisterAll()
	for _, c := range m.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
