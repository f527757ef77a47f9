// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package controller

import (
	"context"

	"github.com/relabs-tech/trip_capture/internal/ipc"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// dispatch runs on the connection's read goroutine, so listeners observe
// messages in the order the worker sent them.
func (c *Controller) dispatch(msg ipc.Message) {
	switch msg.What {
	case ipc.GeolocationFix:
		for _, l := range c.snapshotListeners() {
			l.OnFixAcquired()
		}
	case ipc.NoGeolocationFix:
		for _, l := range c.snapshotListeners() {
			l.OnFixLost()
		}
	case ipc.LocationCaptured:
		if msg.Location == nil {
			return
		}
		for _, l := range c.snapshotListeners() {
			l.OnNewGeoLocationAcquired(*msg.Location)
		}
	case ipc.DataCaptured:
		if msg.Data == nil {
			return
		}
		for _, l := range c.snapshotListeners() {
			l.OnNewSensorDataAcquired(*msg.Data)
		}
	case ipc.ServiceStopped:
		if !msg.Success {
			return
		}
		for _, l := range c.snapshotListeners() {
			l.OnCapturingStopped(msg.MeasurementID, false)
		}
	case ipc.ServiceStoppedItself:
		c.onStoppedItself(msg.MeasurementID)
		for _, l := range c.snapshotListeners() {
			l.OnCapturingStopped(msg.MeasurementID, true)
		}
	default:
		monitoring.Logf("controller: ignoring %s", msg.What)
	}
}

// onStoppedItself finishes the measurement the worker gave up on and
// queues the unbind behind any running operation.
func (c *Controller) onStoppedItself(id int64) {
	c.mu.Lock()
	m, found, err := c.opts.Persistence.CurrentMeasurement(model.StatusOpen)
	switch {
	case err != nil:
		monitoring.Logf("controller: WARNING: read open measurement: %v", err)
	case found && m.ID == id:
		if err := c.transitionLocked(id, model.StatusFinished, model.EventLifecycleStop); err != nil {
			monitoring.Logf("controller: WARNING: finish measurement %d: %v", id, err)
		}
	}
	c.state = StateIdle
	c.mu.Unlock()

	monitoring.Logf("controller: worker stopped capturing %d on its own", id)
	c.ops.push(func(context.Context) { c.unbind() })
}
