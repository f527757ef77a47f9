// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package worker is the long-running capture process: it owns the sampler,
// persists what it captures, accumulates distance and reports to bound
// controllers.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/capterr"
	"github.com/relabs-tech/trip_capture/internal/capturing"
	"github.com/relabs-tech/trip_capture/internal/fsutil"
	"github.com/relabs-tech/trip_capture/internal/ipc"
	"github.com/relabs-tech/trip_capture/internal/liveness"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/power"
	"github.com/relabs-tech/trip_capture/internal/strategy"
	"github.com/relabs-tech/trip_capture/internal/timebase"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

// State is the lifecycle state of a Worker.
type State int

const (
	StateCreated State = iota
	StateAwaitingStart
	StateInitializing
	StateRunning
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateAwaitingStart:
		return "AWAITING_START"
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateDestroyed:
		return "DESTROYED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Deps are the collaborators a worker is built from.
type Deps struct {
	Bus        broadcast.Bus
	Topics     broadcast.Topics
	WakeLock   power.WakeLock
	Notifier   power.Notifier
	Strategies *strategy.Registry

	// OpenPersistence opens the store named by the start command's
	// authority. Defaults to OpenStore.
	OpenPersistence func(authority string) (Persistence, error)

	Locations platform.LocationManager
	Sensors   platform.SensorManager
	Clocks    timebase.Clocks
	Clock     timeutil.Clock

	Space        fsutil.SpaceChecker
	MinFreeBytes uint64
	ChunkSize    int

	// RolloverCorrection is added to a location timestamp that lies within
	// RolloverTolerance of exactly that far before the worker started.
	RolloverCorrection time.Duration
	RolloverTolerance  time.Duration
}

func (d *Deps) setDefaults() {
	if d.WakeLock == nil {
		d.WakeLock = &power.CountingWakeLock{}
	}
	if d.Strategies == nil {
		d.Strategies = strategy.NewRegistry()
	}
	if d.OpenPersistence == nil {
		d.OpenPersistence = OpenStore
	}
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}
	if d.Clocks == nil {
		d.Clocks = timebase.SystemClocks{}
	}
	if d.ChunkSize <= 0 {
		d.ChunkSize = DefaultChunkSize
	}
}

// Worker captures one measurement. It is created per START command and
// destroyed on STOP or when it stops itself.
type Worker struct {
	deps      Deps
	clients   *ClientRegistry
	responder *liveness.Responder
	// stopSelf asks the owner to destroy this worker. It must not block.
	stopSelf func(*Worker)

	mu    sync.Mutex
	state State

	measurementID int64
	persistence   Persistence
	sampler       *capturing.Sampler
	cleaning      strategy.LocationCleaning
	distanceCalc  strategy.DistanceCalculation
	events        strategy.EventHandling
	channelID     string
	space         fsutil.SpacePolicy
	startupMillis int64
	stoppedItself bool

	// Touched only from the sampler's location callback.
	distance     float64
	lastLocation *model.GeoLocation
}

// NewWorker returns a worker in state CREATED.
func NewWorker(deps Deps, clients *ClientRegistry, stopSelf func(*Worker)) *Worker {
	deps.setDefaults()
	if clients == nil {
		clients = NewClientRegistry()
	}
	if stopSelf == nil {
		stopSelf = func(w *Worker) { go w.StopItself() }
	}
	return &Worker{
		deps:      deps,
		clients:   clients,
		responder: liveness.NewResponder(deps.Bus, deps.Topics),
		stopSelf:  stopSelf,
		state:     StateCreated,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// MeasurementID returns the measurement being captured, or 0 before Start.
func (w *Worker) MeasurementID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.measurementID
}

// Create acquires the wake lock and starts answering liveness pings.
func (w *Worker) Create() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateCreated {
		return &capterr.IllegalStateError{Reason: "create in state " + w.state.String()}
	}
	w.deps.WakeLock.Acquire()
	if err := w.responder.Register(); err != nil {
		w.deps.WakeLock.Release()
		return err
	}
	w.state = StateAwaitingStart
	return nil
}

func validateStart(cmd ipc.StartCommand) error {
	switch {
	case cmd.MeasurementID <= 0:
		return capterr.Configuration("missing measurement id")
	case cmd.Authority == "":
		return capterr.Configuration("missing persistence authority")
	case cmd.NotificationChannelID == "":
		return capterr.Configuration("missing notification channel id")
	case cmd.CaptureSensors && cmd.SensorFrequencyHz <= 0:
		return capterr.Configuration("invalid sensor frequency %d Hz", cmd.SensorFrequencyHz)
	}
	return nil
}

// Start loads the measurement named by cmd and begins capturing. Any
// error is a *capterr.ConfigurationError or wraps one.
func (w *Worker) Start(cmd ipc.StartCommand) error {
	w.mu.Lock()
	if w.state != StateAwaitingStart {
		st := w.state
		w.mu.Unlock()
		return &capterr.IllegalStateError{Reason: "start in state " + st.String()}
	}
	w.state = StateInitializing
	w.mu.Unlock()

	if err := w.initialize(cmd); err != nil {
		return err
	}

	w.mu.Lock()
	w.state = StateRunning
	w.mu.Unlock()

	if w.deps.Notifier != nil {
		note := w.events.BuildCapturingNotification(w.channelID, cmd.MeasurementID)
		if err := w.deps.Notifier.Show(note); err != nil {
			monitoring.Logf("worker: WARNING: show notification: %v", err)
		}
	}
	w.announce(w.deps.Topics.Started, broadcast.LifecycleAnnouncement{
		MeasurementID: cmd.MeasurementID,
		Success:       true,
	})
	monitoring.Logf("worker: capturing measurement %d", cmd.MeasurementID)
	return nil
}

func (w *Worker) initialize(cmd ipc.StartCommand) error {
	if err := validateStart(cmd); err != nil {
		return err
	}
	distanceCalc, err := w.deps.Strategies.Distance(cmd.DistanceStrategy)
	if err != nil {
		return err
	}
	cleaning, err := w.deps.Strategies.Cleaning(cmd.LocationCleaningStrategy)
	if err != nil {
		return err
	}
	events, err := w.deps.Strategies.EventHandling(cmd.EventHandlingStrategy)
	if err != nil {
		return err
	}

	p, err := w.deps.OpenPersistence(cmd.Authority)
	if err != nil {
		return &capterr.ConfigurationError{Reason: "open persistence " + cmd.Authority, Err: err}
	}
	m, err := p.LoadMeasurement(cmd.MeasurementID)
	if err != nil {
		p.Shutdown()
		return &capterr.ConfigurationError{Reason: fmt.Sprintf("load measurement %d", cmd.MeasurementID), Err: err}
	}
	if m.FileFormatVersion != model.PersistenceFileFormatVersion {
		p.Shutdown()
		return capterr.Configuration("measurement %d has format version %d, expected %d",
			m.ID, m.FileFormatVersion, model.PersistenceFileFormatVersion)
	}

	var sensorCapture capturing.SensorCapture = capturing.DisabledSensorCapture{}
	if cmd.CaptureSensors {
		sensorCapture = capturing.EnabledSensorCapture{FrequencyHz: cmd.SensorFrequencyHz}
	}

	w.mu.Lock()
	w.measurementID = cmd.MeasurementID
	w.persistence = p
	w.cleaning = cleaning
	w.distanceCalc = distanceCalc
	w.events = events
	w.channelID = cmd.NotificationChannelID
	w.distance = m.Distance
	w.startupMillis = timeutil.UnixMillis(w.deps.Clock)
	w.space = fsutil.SpacePolicy{
		Checker:  w.deps.Space,
		Path:     cmd.Authority,
		MinBytes: w.deps.MinFreeBytes,
	}
	w.mu.Unlock()

	sampler, err := capturing.NewSampler(capturing.Options{
		Locations:     w.deps.Locations,
		Sensors:       w.deps.Sensors,
		SensorCapture: sensorCapture,
		Clocks:        w.deps.Clocks,
		Clock:         w.deps.Clock,
		OnFatal:       w.onFatal,
	})
	if err != nil {
		p.Shutdown()
		return &capterr.ConfigurationError{Reason: "start sampler", Err: err}
	}
	sampler.AddListener(w)

	w.mu.Lock()
	w.sampler = sampler
	w.mu.Unlock()
	return nil
}

// RegisterClient adds c to the clients that receive capture messages.
func (w *Worker) RegisterClient(c Client) {
	if !w.clients.Add(c) {
		monitoring.Logf("worker: WARNING: client %s registered twice", c.ID())
	}
}

// Destroy releases everything the worker holds and then announces that it
// stopped. Bound clients receive SERVICE_STOPPED, or SERVICE_STOPPED_ITSELF
// when the worker stopped on its own. Calling Destroy again is a no-op.
func (w *Worker) Destroy() {
	w.mu.Lock()
	if w.state == StateDestroyed {
		w.mu.Unlock()
		return
	}
	wasRunning := w.state == StateRunning
	acquired := w.state != StateCreated
	w.state = StateDestroyed
	sampler := w.sampler
	p := w.persistence
	id := w.measurementID
	itself := w.stoppedItself
	w.mu.Unlock()

	if acquired {
		w.deps.WakeLock.Release()
	}
	if sampler != nil {
		sampler.Close()
	}
	if p != nil {
		if err := p.Shutdown(); err != nil {
			monitoring.Logf("worker: WARNING: shutdown persistence: %v", err)
		}
	}
	w.responder.Unregister()
	if w.deps.Notifier != nil && wasRunning {
		if err := w.deps.Notifier.Dismiss(w.channelID); err != nil {
			monitoring.Logf("worker: WARNING: dismiss notification: %v", err)
		}
	}

	if !wasRunning {
		return
	}
	what := ipc.ServiceStopped
	if itself {
		what = ipc.ServiceStoppedItself
	}
	w.clients.Broadcast(ipc.Message{What: what, MeasurementID: id, Success: true})
	w.announce(w.deps.Topics.Stopped, broadcast.LifecycleAnnouncement{
		MeasurementID: id,
		Success:       true,
		StoppedItself: itself,
	})
	monitoring.Logf("worker: measurement %d stopped", id)
}

// StopItself destroys the worker on its own initiative.
func (w *Worker) StopItself() {
	w.mu.Lock()
	w.stoppedItself = true
	w.mu.Unlock()
	w.Destroy()
}

func (w *Worker) requestStop() {
	w.mu.Lock()
	if w.stoppedItself || w.state != StateRunning {
		w.mu.Unlock()
		return
	}
	w.stoppedItself = true
	w.mu.Unlock()
	w.stopSelf(w)
}

func (w *Worker) onFatal(err error) {
	monitoring.Logf("worker: fatal capture error: %v", err)
	var cfgErr *capterr.ConfigurationError
	if errors.As(err, &cfgErr) {
		w.requestStop()
	}
}

func (w *Worker) announce(topic string, a broadcast.LifecycleAnnouncement) {
	payload, err := json.Marshal(a)
	if err != nil {
		monitoring.Logf("worker: marshal announcement: %v", err)
		return
	}
	if err := w.deps.Bus.Publish(topic, payload); err != nil {
		monitoring.Logf("worker: WARNING: publish %s: %v", topic, err)
	}
}

// Distance returns the accumulated distance in meters.
func (w *Worker) Distance() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.distance
}
