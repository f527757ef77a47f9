// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package capturing samples location and motion sensors and emits time
// aligned batches to its listeners.
package capturing

import (
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/status"
	"github.com/relabs-tech/trip_capture/internal/timebase"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

// noFixFlushInterval bounds how long sensor data is buffered while there is
// no fix to trigger flushes.
const noFixFlushInterval = time.Second

const queueSize = 1024

// Listener receives captured data. Calls happen inside the sampler's
// critical section and must not block.
type Listener interface {
	status.FixListener
	OnLocationCaptured(loc model.GeoLocation)
	OnDataCaptured(data model.CapturedData)
}

// Options configures a Sampler.
type Options struct {
	Locations     platform.LocationManager
	Sensors       platform.SensorManager
	SensorCapture SensorCapture
	Clocks        timebase.Clocks
	Clock         timeutil.Clock
	// OnFatal is called once if sensor timestamps cannot be normalized.
	// Sensor events are dropped afterwards.
	OnFatal func(error)
}

// Sampler registers with the platform, buffers sensor samples and flushes
// them with every location update, or once per second without a fix.
//
// Location and sensor callbacks run on two dedicated goroutines. Both read
// and clear the same four buffers under mu.
type Sampler struct {
	opts       Options
	normalizer *timebase.Normalizer
	tracker    *status.Tracker

	listenersMu sync.RWMutex
	listeners   []Listener

	mu             sync.Mutex
	accelerations  []model.Point3D
	rotations      []model.Point3D
	directions     []model.Point3D
	pressures      []model.Pressure
	lastNoFixFlush time.Time
	failed         bool

	queueMu        sync.RWMutex
	closed         bool
	locationEvents chan platform.Event
	sensorEvents   chan platform.Event
	wg             sync.WaitGroup
}

// NewSampler starts the two executors and registers with the location and
// sensor subsystems.
func NewSampler(opts Options) (*Sampler, error) {
	if opts.Locations == nil {
		return nil, fmt.Errorf("capturing: location manager is required")
	}
	if opts.SensorCapture == nil {
		opts.SensorCapture = DisabledSensorCapture{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Clocks == nil {
		opts.Clocks = timebase.SystemClocks{}
	}

	s := &Sampler{
		opts:           opts,
		normalizer:     timebase.NewNormalizer(opts.Clocks),
		locationEvents: make(chan platform.Event, queueSize),
		sensorEvents:   make(chan platform.Event, queueSize),
	}
	s.tracker = status.NewTracker(opts.Clock, s.fixListeners, nil)

	s.wg.Add(2)
	go s.run(s.locationEvents, s.handleLocationEvent)
	go s.run(s.sensorEvents, s.handleSensorEvent)

	if err := opts.Locations.RequestUpdates(s.enqueue); err != nil {
		s.stopExecutors()
		return nil, fmt.Errorf("capturing: request location updates: %w", err)
	}
	if opts.Sensors != nil {
		if err := opts.SensorCapture.Register(opts.Sensors, s.enqueue); err != nil {
			_ = opts.Locations.RemoveUpdates()
			s.stopExecutors()
			return nil, fmt.Errorf("capturing: register sensors: %w", err)
		}
	}
	return s, nil
}

// AddListener registers a data sink. The same list receives fix events from
// the status tracker.
func (s *Sampler) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Sampler) snapshotListeners() []Listener {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return append([]Listener(nil), s.listeners...)
}

func (s *Sampler) fixListeners() []status.FixListener {
	ls := s.snapshotListeners()
	out := make([]status.FixListener, len(ls))
	for i, l := range ls {
		out[i] = l
	}
	return out
}

// HasFix reports the tracker state.
func (s *Sampler) HasFix() bool {
	return s.tracker.HasFix()
}

// Handle dispatches one platform event to the matching executor. It is the
// platform.Handler registered with both subsystems.
func (s *Sampler) Handle(ev platform.Event) {
	s.enqueue(ev)
}

func (s *Sampler) enqueue(ev platform.Event) {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return
	}
	switch ev.(type) {
	case platform.SensorEvent:
		s.sensorEvents <- ev
	default:
		s.locationEvents <- ev
	}
}

func (s *Sampler) run(events <-chan platform.Event, handle func(platform.Event)) {
	defer s.wg.Done()
	for ev := range events {
		handle(ev)
	}
}

func (s *Sampler) handleLocationEvent(ev platform.Event) {
	switch e := ev.(type) {
	case platform.LocationEvent:
		s.onLocationChanged(e.Location)
	case platform.SatelliteStatusEvent:
		s.tracker.OnSatelliteStatus()
	case platform.FirstFixEvent:
		s.tracker.OnFirstFix()
	default:
		monitoring.Logf("capturing: WARNING: unexpected location event %T", ev)
	}
}

func (s *Sampler) onLocationChanged(loc model.GeoLocation) {
	s.tracker.OnLocationUpdate()
	if !s.tracker.HasFix() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.snapshotLocked()
	for _, l := range s.snapshotListeners() {
		l.OnLocationCaptured(loc)
		l.OnDataCaptured(data)
	}
	s.clearLocked()
}

func (s *Sampler) handleSensorEvent(ev platform.Event) {
	e, ok := ev.(platform.SensorEvent)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}

	timestamp, err := s.normalizer.Normalize(e.TimestampNanos)
	if err != nil {
		s.failed = true
		monitoring.Logf("capturing: sensor timebase: %v", err)
		if s.opts.OnFatal != nil {
			s.opts.OnFatal(err)
		}
		return
	}

	now := s.opts.Clock.Now()
	if !s.tracker.HasFix() && (s.lastNoFixFlush.IsZero() || now.Sub(s.lastNoFixFlush) > noFixFlushInterval) {
		s.flushWithoutLocationLocked()
		s.lastNoFixFlush = now
	}

	switch e.Sensor {
	case platform.Barometer:
		if len(e.Values) == 0 {
			return
		}
		// some platforms report more than one value; only the first is
		// the pressure
		s.pressures = append(s.pressures, model.Pressure{Timestamp: timestamp, Value: e.Values[0]})
	case platform.Accelerometer, platform.Gyroscope, platform.Magnetometer:
		if len(e.Values) < 3 {
			monitoring.Logf("capturing: WARNING: %s event with %d values dropped", e.Sensor, len(e.Values))
			return
		}
		p := model.Point3D{Timestamp: timestamp, X: float32(e.Values[0]), Y: float32(e.Values[1]), Z: float32(e.Values[2])}
		switch e.Sensor {
		case platform.Accelerometer:
			s.accelerations = append(s.accelerations, p)
		case platform.Gyroscope:
			s.rotations = append(s.rotations, p)
		default:
			s.directions = append(s.directions, p)
		}
	}
}

func (s *Sampler) flushWithoutLocationLocked() {
	data := s.snapshotLocked()
	if data.Empty() {
		return
	}
	for _, l := range s.snapshotListeners() {
		l.OnDataCaptured(data)
	}
	s.clearLocked()
}

func (s *Sampler) snapshotLocked() model.CapturedData {
	return model.CapturedData{
		Accelerations: append([]model.Point3D{}, s.accelerations...),
		Rotations:     append([]model.Point3D{}, s.rotations...),
		Directions:    append([]model.Point3D{}, s.directions...),
		Pressures:     append([]model.Pressure{}, s.pressures...),
	}
}

func (s *Sampler) clearLocked() {
	s.accelerations = s.accelerations[:0]
	s.rotations = s.rotations[:0]
	s.directions = s.directions[:0]
	s.pressures = s.pressures[:0]
}

// Close unregisters from all subsystems and returns once no further
// callbacks can reach the listeners.
func (s *Sampler) Close() error {
	var firstErr error
	if err := s.opts.Locations.RemoveUpdates(); err != nil {
		firstErr = fmt.Errorf("capturing: remove location updates: %w", err)
	}
	s.tracker.Shutdown()
	if s.opts.Sensors != nil {
		if err := s.opts.SensorCapture.Unregister(s.opts.Sensors); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("capturing: unregister sensors: %w", err)
		}
	}
	s.stopExecutors()
	return firstErr
}

func (s *Sampler) stopExecutors() {
	s.queueMu.Lock()
	if s.closed {
		s.queueMu.Unlock()
		return
	}
	s.closed = true
	close(s.locationEvents)
	close(s.sensorEvents)
	s.queueMu.Unlock()
	s.wg.Wait()
}
