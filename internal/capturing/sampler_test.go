// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package capturing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/trip_capture/internal/capterr"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/platform/sim"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

const wallStart = int64(1_760_000_000_000)

type recorder struct {
	mu        sync.Mutex
	calls     []string
	locations []model.GeoLocation
	batches   []model.CapturedData
}

func (r *recorder) OnLocationFix() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "fix")
}

func (r *recorder) OnLocationFixLost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "lost")
}

func (r *recorder) OnLocationCaptured(loc model.GeoLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "location")
	r.locations = append(r.locations, loc)
}

func (r *recorder) OnDataCaptured(data model.CapturedData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "data")
	r.batches = append(r.batches, data)
}

func (r *recorder) snapshot() ([]string, []model.CapturedData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), append([]model.CapturedData(nil), r.batches...)
}

type fixture struct {
	sampler   *Sampler
	locations *sim.LocationManager
	sensors   *sim.SensorManager
	clock     *timeutil.MockClock
	rec       *recorder
}

func newFixture(t *testing.T, available ...platform.SensorType) *fixture {
	t.Helper()
	f := &fixture{
		locations: sim.NewLocationManager(),
		sensors:   sim.NewSensorManager(available...),
		clock:     timeutil.NewMockClock(time.UnixMilli(wallStart)),
		rec:       &recorder{},
	}
	s, err := NewSampler(Options{
		Locations:     f.locations,
		Sensors:       f.sensors,
		SensorCapture: EnabledSensorCapture{FrequencyHz: 100},
		Clocks:        &sim.Clocks{ElapsedNanos: 1_000 * 1_000_000, UpNanos: 1_000 * 1_000_000, WallMillis: wallStart},
		Clock:         f.clock,
	})
	require.NoError(t, err)
	s.AddListener(f.rec)
	f.sampler = s
	t.Cleanup(func() { _ = s.Close() })
	return f
}

// waitBuffered waits until n samples are buffered, which means every sensor
// event emitted so far has been handled.
func (f *fixture) waitBuffered(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.sampler.mu.Lock()
		defer f.sampler.mu.Unlock()
		return len(f.sampler.accelerations)+len(f.sampler.rotations)+len(f.sampler.directions)+len(f.sampler.pressures) == n
	}, time.Second, time.Millisecond)
}

// rawNanos returns the sensor clock reading that normalizes to wallStart+ms.
func rawNanos(ms int64) int64 {
	return (1_000 + ms) * 1_000_000
}

func TestEnabledSensorCapture_Registration(t *testing.T) {
	f := newFixture(t)

	want := []sim.Registration{
		{Sensor: platform.Accelerometer, SamplingPeriod: 10 * time.Millisecond, MaxReportLatency: 500 * time.Millisecond},
		{Sensor: platform.Gyroscope, SamplingPeriod: 10 * time.Millisecond, MaxReportLatency: 500 * time.Millisecond},
		{Sensor: platform.Magnetometer, SamplingPeriod: 10 * time.Millisecond, MaxReportLatency: 500 * time.Millisecond},
		{Sensor: platform.Barometer, SamplingPeriod: 200 * time.Millisecond, MaxReportLatency: 500 * time.Millisecond},
	}
	if diff := cmp.Diff(want, f.sensors.Registrations()); diff != "" {
		t.Errorf("registrations mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, f.locations.Registered())
}

func TestEnabledSensorCapture_SkipsAbsentSensors(t *testing.T) {
	f := newFixture(t, platform.Accelerometer, platform.Gyroscope)

	regs := f.sensors.Registrations()
	require.Len(t, regs, 2)
	assert.Equal(t, platform.Accelerometer, regs[0].Sensor)
	assert.Equal(t, platform.Gyroscope, regs[1].Sensor)
}

func TestEnabledSensorCapture_SamplingPeriod(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, EnabledSensorCapture{FrequencyHz: 50}.SamplingPeriod())
	assert.Equal(t, 3333*time.Microsecond, EnabledSensorCapture{FrequencyHz: 300}.SamplingPeriod())

	err := EnabledSensorCapture{FrequencyHz: 0}.Register(sim.NewSensorManager(), func(platform.Event) {})
	assert.Error(t, err)
}

func TestDisabledSensorCapture_RegistersNothing(t *testing.T) {
	sensors := sim.NewSensorManager()
	s, err := NewSampler(Options{
		Locations:     sim.NewLocationManager(),
		Sensors:       sensors,
		SensorCapture: DisabledSensorCapture{},
		Clocks:        &sim.Clocks{},
		Clock:         timeutil.NewMockClock(time.UnixMilli(wallStart)),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Empty(t, sensors.Registrations())
}

func TestSampler_LocationWithoutFixIsIgnored(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.locations.EmitLocation(model.GeoLocation{Timestamp: wallStart, Latitude: 51.05, Longitude: 13.73}))
	require.NoError(t, f.sampler.Close())

	calls, _ := f.rec.snapshot()
	assert.Empty(t, calls)
}

func TestSampler_LocationFlushesBuffers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.locations.EmitFirstFix())
	require.Eventually(t, f.sampler.HasFix, time.Second, time.Millisecond)

	require.NoError(t, f.sensors.Emit(platform.Accelerometer, rawNanos(10), 0.1, 0.2, 9.81))
	require.NoError(t, f.sensors.Emit(platform.Gyroscope, rawNanos(12), 0.01, 0.02, 0.03))
	require.NoError(t, f.sensors.Emit(platform.Magnetometer, rawNanos(14), 20, -5, 40))
	require.NoError(t, f.sensors.Emit(platform.Barometer, rawNanos(16), 1013.25, 21.5))
	f.waitBuffered(t, 4)

	loc := model.GeoLocation{Timestamp: wallStart + 20, Latitude: 51.05, Longitude: 13.73, Altitude: model.Float64(112), Speed: 4.2, Accuracy: 5}
	require.NoError(t, f.locations.EmitLocation(loc))
	f.clock.Advance(10 * time.Millisecond)
	require.NoError(t, f.sampler.Close())

	calls, batches := f.rec.snapshot()
	assert.Equal(t, []string{"fix", "location", "data"}, calls)
	require.Len(t, batches, 1)

	want := model.CapturedData{
		Accelerations: []model.Point3D{{Timestamp: wallStart + 10, X: 0.1, Y: 0.2, Z: 9.81}},
		Rotations:     []model.Point3D{{Timestamp: wallStart + 12, X: 0.01, Y: 0.02, Z: 0.03}},
		Directions:    []model.Point3D{{Timestamp: wallStart + 14, X: 20, Y: -5, Z: 40}},
		Pressures:     []model.Pressure{{Timestamp: wallStart + 16, Value: 1013.25}},
	}
	if diff := cmp.Diff(want, batches[0]); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	f.waitBuffered(t, 0)
}

func TestSampler_MissingAltitudeStaysMissing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.locations.EmitFirstFix())
	require.NoError(t, f.locations.EmitLocation(model.GeoLocation{Timestamp: wallStart, Latitude: 1, Longitude: 2}))
	require.NoError(t, f.sampler.Close())

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	require.Len(t, f.rec.locations, 1)
	assert.Nil(t, f.rec.locations[0].Altitude)
	assert.Nil(t, f.rec.locations[0].VerticalAccuracy)
}

func TestSampler_NoFixFlushOncePerSecond(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.sensors.Emit(platform.Accelerometer, rawNanos(0), 0, 0, 9.81))
	f.waitBuffered(t, 1)

	f.clock.Advance(500 * time.Millisecond)
	require.NoError(t, f.sensors.Emit(platform.Accelerometer, rawNanos(500), 0, 0, 9.81))
	f.waitBuffered(t, 2)

	f.clock.Advance(600 * time.Millisecond)
	require.NoError(t, f.sensors.Emit(platform.Accelerometer, rawNanos(1100), 0, 0, 9.81))
	f.waitBuffered(t, 1)

	calls, batches := f.rec.snapshot()
	assert.Equal(t, []string{"data"}, calls)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Accelerations, 2)
	assert.Equal(t, wallStart+500, batches[0].Accelerations[1].Timestamp)
}

func TestSampler_TimebaseFailureIsFatal(t *testing.T) {
	var (
		mu    sync.Mutex
		fatal error
	)
	sensors := sim.NewSensorManager()
	s, err := NewSampler(Options{
		Locations:     sim.NewLocationManager(),
		Sensors:       sensors,
		SensorCapture: EnabledSensorCapture{FrequencyHz: 10},
		// event clock matches the since-sleep uptime only
		Clocks: &sim.Clocks{ElapsedNanos: 900_000 * 1_000_000, UpNanos: 5_000 * 1_000_000, WallMillis: wallStart},
		Clock:  timeutil.NewMockClock(time.UnixMilli(wallStart)),
		OnFatal: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			fatal = err
		},
	})
	require.NoError(t, err)

	require.NoError(t, sensors.Emit(platform.Accelerometer, 5_000*1_000_000, 0, 0, 1))
	require.NoError(t, sensors.Emit(platform.Accelerometer, 5_010*1_000_000, 0, 0, 1))
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	var cfgErr *capterr.ConfigurationError
	require.True(t, errors.As(fatal, &cfgErr))
	assert.Empty(t, s.accelerations)
}

func TestSampler_CloseUnregistersEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sampler.Close())

	assert.Equal(t, 1, f.locations.Removed())
	assert.Equal(t, 1, f.sensors.Unregistered())
	assert.ErrorIs(t, f.sensors.Emit(platform.Accelerometer, rawNanos(0), 0, 0, 0), sim.ErrNotRegistered)

	// direct delivery after close is dropped, not panicking
	assert.NotPanics(t, func() {
		f.sampler.Handle(platform.SensorEvent{Sensor: platform.Accelerometer, Values: []float64{0, 0, 0}})
	})
	require.NoError(t, f.sampler.Close())
}

func TestSampler_ShortEventsDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sensors.Emit(platform.Gyroscope, rawNanos(0), 0.1))
	require.NoError(t, f.sensors.Emit(platform.Barometer, rawNanos(0)))
	require.NoError(t, f.sensors.Emit(platform.Barometer, rawNanos(1), 990.0))
	f.waitBuffered(t, 1)

	f.sampler.mu.Lock()
	defer f.sampler.mu.Unlock()
	assert.Empty(t, f.sampler.rotations)
	assert.Len(t, f.sampler.pressures, 1)
}

func TestNewSampler_RequiresLocationManager(t *testing.T) {
	_, err := NewSampler(Options{})
	assert.Error(t, err)
}
