// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package controller is the client side of the capture core. It keeps the
// persisted measurement status, binds to the worker process over ipc and
// hands captured data to registered listeners.
//
// Every lifecycle operation returns immediately. Precondition checks and
// status changes happen before it returns; the interaction with the worker
// runs later on a single queue, one operation after the other, and its
// outcome is delivered on the returned channel.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/capterr"
	"github.com/relabs-tech/trip_capture/internal/ipc"
	"github.com/relabs-tech/trip_capture/internal/liveness"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

var (
	// ErrTimeout is delivered when the worker did not confirm an operation
	// within the lifecycle timeout.
	ErrTimeout = errors.New("controller: timed out waiting for the worker")
	// ErrClosed is delivered for operations issued after Close.
	ErrClosed = errors.New("controller: closed")
)

// LifecycleState is the controller's view of the capture session.
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateStarting
	StateRunning
	StateDisconnected
	StateStopping
)

func (s LifecycleState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateStopping:
		return "STOPPING"
	}
	return fmt.Sprintf("LifecycleState(%d)", int(s))
}

// Result completes a lifecycle operation. OK is false when the operation
// changed nothing, for example a start while already capturing. Err holds
// one of the capterr categories, ErrTimeout or a transport error.
type Result struct {
	MeasurementID int64
	OK            bool
	Err           error
}

// DataCapturingListener receives what the worker forwards. Methods are
// called one at a time in the order the worker sent the messages.
type DataCapturingListener interface {
	OnFixAcquired()
	OnFixLost()
	OnNewGeoLocationAcquired(loc model.GeoLocation)
	OnNewSensorDataAcquired(data model.CapturedData)
	OnCapturingStopped(measurementID int64, stoppedItself bool)
}

// Persistence is the part of the store the controller drives.
type Persistence interface {
	NewMeasurement(modality model.Modality) (model.Measurement, error)
	CurrentMeasurement(statuses ...model.MeasurementStatus) (model.Measurement, bool, error)
	SetStatus(id int64, status model.MeasurementStatus) error
	LogEvent(id int64, eventType model.EventType, value string) (model.Event, error)
}

// Options configures a Controller.
type Options struct {
	Persistence Persistence
	Bus         broadcast.Bus
	Topics      broadcast.Topics
	// Permissions is consulted on every Start. Nil grants everything.
	Permissions platform.PermissionChecker
	Clock       timeutil.Clock

	// IPCURL is the websocket endpoint of the worker process.
	IPCURL string
	// UploadEndpoint must be an http or https URL.
	UploadEndpoint string

	PingTimeout      time.Duration
	LifecycleTimeout time.Duration

	// StartTemplate is sent with every start; the measurement id is filled
	// in per measurement.
	StartTemplate ipc.StartCommand
}

// Controller drives one worker process.
type Controller struct {
	opts   Options
	pinger *liveness.Pinger
	ops    *opQueue
	cancel context.CancelFunc

	// mu orders status transitions and guards state and conn.
	mu    sync.Mutex
	state LifecycleState
	conn  *ipc.Conn

	listenersMu sync.Mutex
	listeners   []DataCapturingListener
}

// New returns a controller in state IDLE and starts its operation queue.
func New(opts Options) (*Controller, error) {
	if opts.Persistence == nil {
		return nil, capterr.Configuration("missing persistence")
	}
	if opts.Bus == nil {
		return nil, capterr.Configuration("missing broadcast bus")
	}
	if opts.IPCURL == "" {
		return nil, capterr.Configuration("missing worker ipc url")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 500 * time.Millisecond
	}
	if opts.LifecycleTimeout <= 0 {
		opts.LifecycleTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:   opts,
		pinger: liveness.NewPinger(opts.Bus, opts.Topics, opts.Clock),
		ops:    newOpQueue(),
		cancel: cancel,
		state:  StateIdle,
	}
	go c.ops.run(ctx)
	return c, nil
}

// Close stops the operation queue and unbinds. Pending operations complete
// with a context error.
func (c *Controller) Close() {
	c.cancel()
	<-c.ops.done
	c.unbind()
}

// State returns the current lifecycle state.
func (c *Controller) State() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s LifecycleState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// AddListener registers l for captured data and fix changes.
func (c *Controller) AddListener(l DataCapturingListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l DataCapturingListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for i, registered := range c.listeners {
		if registered == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *Controller) snapshotListeners() []DataCapturingListener {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	return append([]DataCapturingListener(nil), c.listeners...)
}

// Start begins a new measurement, or relaunches the worker for an OPEN
// measurement whose worker is gone. A PAUSED measurement is finished first.
// Starting while the worker already captures completes with OK false.
func (c *Controller) Start(modality model.Modality) (<-chan Result, error) {
	if c.opts.Permissions != nil && !c.opts.Permissions.HasLocationPermission() {
		return nil, &capterr.MissingCapabilityError{Capability: "location"}
	}
	if err := ValidateEndpoint(c.opts.UploadEndpoint); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, found, err := c.opts.Persistence.CurrentMeasurement()
	if err != nil {
		return nil, fmt.Errorf("controller: start: %w", err)
	}
	if found && m.Status == model.StatusPaused {
		if err := c.transitionLocked(m.ID, model.StatusFinished, model.EventLifecycleStop); err != nil {
			return nil, err
		}
		found = false
	}
	if found {
		id := m.ID
		return c.enqueueLocked(func(ctx context.Context) Result { return c.ensureRunning(ctx, id) }), nil
	}

	m, err = c.opts.Persistence.NewMeasurement(modality)
	if err != nil {
		return nil, fmt.Errorf("controller: start: %w", err)
	}
	if _, err := c.opts.Persistence.LogEvent(m.ID, model.EventLifecycleStart, ""); err != nil {
		return nil, fmt.Errorf("controller: start: %w", err)
	}
	c.state = StateStarting
	id := m.ID
	return c.enqueueLocked(func(ctx context.Context) Result { return c.launch(ctx, id) }), nil
}

// Stop finishes the OPEN or PAUSED measurement and stops the worker.
func (c *Controller) Stop() (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, found, err := c.opts.Persistence.CurrentMeasurement(model.StatusOpen, model.StatusPaused)
	if err != nil {
		return nil, fmt.Errorf("controller: stop: %w", err)
	}
	if !found {
		return nil, &capterr.NoActiveSessionError{Operation: "stop"}
	}
	if err := c.transitionLocked(m.ID, model.StatusFinished, model.EventLifecycleStop); err != nil {
		return nil, err
	}
	id := m.ID
	if m.Status == model.StatusPaused {
		// a paused measurement has no worker
		return c.enqueueLocked(func(context.Context) Result {
			c.unbind()
			c.setState(StateIdle)
			return Result{MeasurementID: id, OK: true}
		}), nil
	}
	c.state = StateStopping
	return c.enqueueLocked(func(ctx context.Context) Result { return c.stopWorker(ctx, id) }), nil
}

// Pause marks the OPEN measurement PAUSED and stops the worker.
func (c *Controller) Pause() (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, found, err := c.opts.Persistence.CurrentMeasurement(model.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("controller: pause: %w", err)
	}
	if !found {
		return nil, &capterr.NoActiveSessionError{Operation: "pause"}
	}
	if err := c.transitionLocked(m.ID, model.StatusPaused, model.EventLifecyclePause); err != nil {
		return nil, err
	}
	c.state = StateStopping
	id := m.ID
	return c.enqueueLocked(func(ctx context.Context) Result { return c.stopWorker(ctx, id) }), nil
}

// Resume reopens the PAUSED measurement and relaunches the worker for it.
// Resuming an OPEN measurement completes with OK false.
func (c *Controller) Resume() (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, found, err := c.opts.Persistence.CurrentMeasurement(model.StatusOpen, model.StatusPaused)
	if err != nil {
		return nil, fmt.Errorf("controller: resume: %w", err)
	}
	if !found {
		return nil, &capterr.NoActiveSessionError{Operation: "resume"}
	}
	id := m.ID
	if m.Status == model.StatusOpen {
		return c.enqueueLocked(func(context.Context) Result {
			return Result{MeasurementID: id}
		}), nil
	}
	if err := c.transitionLocked(id, model.StatusOpen, model.EventLifecycleResume); err != nil {
		return nil, err
	}
	c.state = StateStarting
	return c.enqueueLocked(func(ctx context.Context) Result { return c.launch(ctx, id) }), nil
}

// Disconnect unbinds from the worker, which keeps capturing. Disconnecting
// while not bound completes with an *capterr.IllegalStateError.
func (c *Controller) Disconnect() (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(func(context.Context) Result {
		id := c.openMeasurementID()
		if !c.unbind() {
			return Result{MeasurementID: id, Err: &capterr.IllegalStateError{Reason: "disconnect while not bound"}}
		}
		c.setState(StateDisconnected)
		return Result{MeasurementID: id, OK: true}
	}), nil
}

// Reconnect pings the worker and binds to it if it answers within timeout.
// OK false means nothing is running.
func (c *Controller) Reconnect(timeout time.Duration) (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(func(ctx context.Context) Result {
		id := c.openMeasurementID()
		alive, err := c.pinger.Ping(ctx, timeout)
		if err != nil {
			return Result{MeasurementID: id, Err: err}
		}
		if !alive {
			c.unbind()
			c.setState(StateIdle)
			return Result{MeasurementID: id}
		}
		if _, err := c.bind(ctx); err != nil {
			return Result{MeasurementID: id, Err: err}
		}
		c.setState(StateRunning)
		return Result{MeasurementID: id, OK: true}
	}), nil
}

// ValidateEndpoint checks that endpoint is an absolute http or https URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return &capterr.ConfigurationError{Reason: "upload endpoint", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return capterr.Configuration("upload endpoint %q needs an http or https scheme", endpoint)
	}
	if u.Host == "" {
		return capterr.Configuration("upload endpoint %q has no host", endpoint)
	}
	return nil
}

func (c *Controller) transitionLocked(id int64, status model.MeasurementStatus, event model.EventType) error {
	if err := c.opts.Persistence.SetStatus(id, status); err != nil {
		return fmt.Errorf("controller: set status of %d to %s: %w", id, status, err)
	}
	if _, err := c.opts.Persistence.LogEvent(id, event, ""); err != nil {
		return fmt.Errorf("controller: log %s for %d: %w", event, id, err)
	}
	return nil
}

func (c *Controller) enqueueLocked(fn func(ctx context.Context) Result) <-chan Result {
	ch := make(chan Result, 1)
	ok := c.ops.push(func(ctx context.Context) {
		ch <- fn(ctx)
		close(ch)
	})
	if !ok {
		ch <- Result{Err: ErrClosed}
		close(ch)
	}
	return ch
}

func (c *Controller) openMeasurementID() int64 {
	m, found, err := c.opts.Persistence.CurrentMeasurement(model.StatusOpen)
	if err != nil {
		monitoring.Logf("controller: WARNING: read open measurement: %v", err)
		return 0
	}
	if !found {
		return 0
	}
	return m.ID
}

// ensureRunning pings the worker for an OPEN measurement and relaunches it
// when nothing answers.
func (c *Controller) ensureRunning(ctx context.Context, id int64) Result {
	alive, err := c.pinger.Ping(ctx, c.opts.PingTimeout)
	if err != nil {
		return Result{MeasurementID: id, Err: err}
	}
	if !alive {
		monitoring.Logf("controller: measurement %d is open but no worker answers, relaunching", id)
		return c.launch(ctx, id)
	}
	if _, err := c.bind(ctx); err != nil {
		return Result{MeasurementID: id, Err: err}
	}
	c.setState(StateRunning)
	return Result{MeasurementID: id}
}

func (c *Controller) launch(ctx context.Context, id int64) Result {
	res := c.startWorker(ctx, id)
	if res.Err != nil {
		c.setState(StateIdle)
	} else {
		c.setState(StateRunning)
	}
	return res
}

func (c *Controller) startWorker(ctx context.Context, id int64) Result {
	started, unsubscribe, err := c.await(c.opts.Topics.Started, id)
	if err != nil {
		return Result{MeasurementID: id, Err: err}
	}
	defer unsubscribe()

	conn, err := c.bind(ctx)
	if err != nil {
		return Result{MeasurementID: id, Err: err}
	}
	cmd := c.opts.StartTemplate
	cmd.MeasurementID = id
	if err := conn.Send(ipc.Message{What: ipc.StartCapturing, MeasurementID: id, Start: &cmd}); err != nil {
		return Result{MeasurementID: id, Err: err}
	}

	ann, err := c.wait(ctx, started)
	if err != nil {
		return Result{MeasurementID: id, Err: err}
	}
	switch {
	case ann.Success:
		monitoring.Logf("controller: measurement %d started", id)
		return Result{MeasurementID: id, OK: true}
	case ann.Failure == broadcast.FailureAlreadyRunning:
		return Result{MeasurementID: id}
	default:
		return Result{MeasurementID: id, Err: failureError(ann.Failure)}
	}
}

// stopWorker asks the worker to stop capturing id and unbinds once it
// confirmed. OK false means no worker was running.
func (c *Controller) stopWorker(ctx context.Context, id int64) Result {
	defer c.setState(StateIdle)

	stopped, unsubscribe, err := c.await(c.opts.Topics.Stopped, id)
	if err != nil {
		return Result{MeasurementID: id, Err: err}
	}
	defer unsubscribe()

	conn, err := c.bind(ctx)
	if err != nil {
		monitoring.Logf("controller: stop of %d: no worker to bind: %v", id, err)
		return Result{MeasurementID: id}
	}
	if err := conn.Send(ipc.Message{What: ipc.StopCapturing, MeasurementID: id}); err != nil {
		c.unbind()
		return Result{MeasurementID: id, Err: err}
	}
	ann, err := c.wait(ctx, stopped)
	c.unbind()
	if err != nil {
		return Result{MeasurementID: id, Err: err}
	}
	return Result{MeasurementID: id, OK: ann.Success}
}

func failureError(failure string) error {
	switch failure {
	case broadcast.FailureConfiguration:
		return capterr.Configuration("worker rejected the start command")
	case broadcast.FailureNotRunning:
		return &capterr.IllegalStateError{Reason: "worker is not running"}
	}
	return fmt.Errorf("controller: worker failure %q", failure)
}

// await subscribes to lifecycle announcements for id on topic. The
// subscription must be in place before the command is sent.
func (c *Controller) await(topic string, id int64) (<-chan broadcast.LifecycleAnnouncement, func(), error) {
	ch := make(chan broadcast.LifecycleAnnouncement, 1)
	unsubscribe, err := c.opts.Bus.Subscribe(topic, func(payload []byte) {
		var ann broadcast.LifecycleAnnouncement
		if err := json.Unmarshal(payload, &ann); err != nil {
			monitoring.Logf("controller: WARNING: bad announcement on %s: %v", topic, err)
			return
		}
		if ann.MeasurementID != id {
			return
		}
		select {
		case ch <- ann:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("controller: subscribe %s: %w", topic, err)
	}
	return ch, unsubscribe, nil
}

func (c *Controller) wait(ctx context.Context, ch <-chan broadcast.LifecycleAnnouncement) (broadcast.LifecycleAnnouncement, error) {
	timer := c.opts.Clock.NewTimer(c.opts.LifecycleTimeout)
	defer timer.Stop()
	select {
	case ann := <-ch:
		return ann, nil
	case <-timer.C():
		return broadcast.LifecycleAnnouncement{}, ErrTimeout
	case <-ctx.Done():
		return broadcast.LifecycleAnnouncement{}, ctx.Err()
	}
}

// bind returns the live connection to the worker, dialing and registering
// a new one if needed.
func (c *Controller) bind(ctx context.Context) (*ipc.Conn, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		select {
		case <-conn.Done():
			// peer went away
		default:
			return conn, nil
		}
	}

	conn, err := ipc.Dial(ctx, c.opts.IPCURL, c.dispatch)
	if err != nil {
		return nil, err
	}
	if err := conn.Send(ipc.Message{What: ipc.RegisterClient, ClientID: conn.ID()}); err != nil {
		conn.Close()
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// unbind closes the connection and reports whether it was still live. A
// connection the worker already closed counts as not bound.
func (c *Controller) unbind() bool {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	live := true
	select {
	case <-conn.Done():
		live = false
	default:
	}
	if err := conn.Close(); err != nil && live {
		monitoring.Logf("controller: WARNING: close ipc connection: %v", err)
	}
	return live
}
