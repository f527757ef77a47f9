// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package worker

import (
	"errors"
	"time"

	"github.com/relabs-tech/trip_capture/internal/capterr"
	"github.com/relabs-tech/trip_capture/internal/ipc"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// The methods below implement capturing.Listener. They run on the
// sampler's executors inside its critical section.

func (w *Worker) OnLocationFix() {
	w.clients.Broadcast(ipc.Message{What: ipc.GeolocationFix, MeasurementID: w.MeasurementID()})
}

func (w *Worker) OnLocationFixLost() {
	w.clients.Broadcast(ipc.Message{What: ipc.NoGeolocationFix, MeasurementID: w.MeasurementID()})
}

// OnDataCaptured forwards and persists a batch in chunks. It stops the
// worker instead when the disk is running full.
func (w *Worker) OnDataCaptured(data model.CapturedData) {
	w.mu.Lock()
	id, p, space, events, size := w.measurementID, w.persistence, w.space, w.events, w.deps.ChunkSize
	running := w.state == StateRunning && !w.stoppedItself
	w.mu.Unlock()
	if !running {
		return
	}

	ok, err := space.Sufficient()
	if err != nil {
		monitoring.Logf("worker: WARNING: free space check: %v", err)
	}
	if !ok {
		events.HandleSpaceWarning(id)
		w.requestStop()
		return
	}

	Chunk(data, size, func(chunk model.CapturedData) {
		w.clients.Broadcast(ipc.Message{What: ipc.DataCaptured, MeasurementID: id, Data: &chunk})
		p.StoreData(chunk, id, func(err error) {
			if err != nil {
				monitoring.Logf("worker: WARNING: store data for %d: %v", id, err)
			}
		})
	})
}

// OnLocationCaptured persists every location, forwards it and adds the
// step from the previous accepted location to the distance. Cached or
// unclean locations are forwarded as invalid and do not count.
func (w *Worker) OnLocationCaptured(loc model.GeoLocation) {
	w.mu.Lock()
	id, p := w.measurementID, w.persistence
	running := w.state == StateRunning
	w.mu.Unlock()
	if !running {
		return
	}

	loc.IsValid = w.cleaning.IsClean(loc) && !w.isCached(loc.Timestamp)
	p.StoreLocation(loc, id)
	if loc.IsValid {
		w.accumulate(p, id, loc)
	}
	w.clients.Broadcast(ipc.Message{What: ipc.LocationCaptured, MeasurementID: id, Location: &loc})
}

// accumulate adds the step from the previous accepted location and queues
// the new total behind the location write. The caller does not wait for
// the database.
func (w *Worker) accumulate(p Persistence, id int64, loc model.GeoLocation) {
	if w.lastLocation == nil {
		w.lastLocation = &loc
		return
	}
	step := w.distanceCalc.CalculateDistance(*w.lastLocation, loc)
	w.lastLocation = &loc

	w.mu.Lock()
	w.distance += step
	distance := w.distance
	w.mu.Unlock()

	p.UpdateDistance(id, distance, func(err error) {
		if err == nil {
			return
		}
		var noSuch *capterr.NoSuchMeasurementError
		if errors.As(err, &noSuch) {
			monitoring.Logf("worker: WARNING: distance of measurement %d not updated, it is no longer open", id)
			return
		}
		monitoring.Logf("worker: WARNING: update distance of %d: %v", id, err)
	})
}

// isCached reports whether a location with timestamp ts predates the
// worker's start, after undoing a GNSS week-number rollover.
func (w *Worker) isCached(ts int64) bool {
	corrected := correctRollover(ts, w.startupMillis, w.deps.RolloverCorrection, w.deps.RolloverTolerance)
	return corrected < w.startupMillis
}

// correctRollover adds correction to ts when ts lies within tolerance of
// exactly correction before reference.
func correctRollover(ts, reference int64, correction, tolerance time.Duration) int64 {
	if correction <= 0 {
		return ts
	}
	c := correction.Milliseconds()
	lag := reference - ts
	if lag-c <= tolerance.Milliseconds() && c-lag <= tolerance.Milliseconds() {
		return ts + c
	}
	return ts
}
