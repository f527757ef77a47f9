// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package storage persists measurements, their lifecycle events, locations
// and sensor batches in SQLite. The controller and the worker open the same
// database file; its path is the persistence authority passed in the start
// command.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/trip_capture/internal/capterr"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

// ErrClosed is returned for writes submitted after Shutdown.
var ErrClosed = errors.New("storage: store is shut down")

const writeQueueSize = 256

// Store is a SQLite-backed persistence layer. Reads and lifecycle writes
// run synchronously; location and sensor writes go through a single writer
// goroutine so the capture callbacks never wait on disk.
type Store struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock

	mu     sync.RWMutex
	closed bool
	writes chan writeJob
	done   chan struct{}
}

type writeJob struct {
	run        func(*sql.DB) error
	onComplete func(error)
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations. A nil clock uses the system clock.
func Open(path string, clock timeutil.Clock) (*Store, error) {
	if path == "" {
		return nil, capterr.Configuration("missing persistence authority")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// One connection keeps the pragmas in effect and serializes writers
	// within this process. WAL lets the other process read concurrently.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		clock:  clock,
		writes: make(chan writeJob, writeQueueSize),
		done:   make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Path returns the database path this store was opened with.
func (s *Store) Path() string { return s.path }

func (s *Store) writer() {
	defer close(s.done)
	for job := range s.writes {
		err := job.run(s.db)
		if job.onComplete != nil {
			job.onComplete(err)
		} else if err != nil {
			monitoring.Logf("storage: WARNING: write failed: %v", err)
		}
	}
}

func (s *Store) enqueue(job writeJob) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		if job.onComplete != nil {
			job.onComplete(ErrClosed)
		} else {
			monitoring.Logf("storage: WARNING: write after shutdown dropped")
		}
		return
	}
	s.writes <- job
}

// Sync blocks until every write queued before the call has completed.
func (s *Store) Sync() error {
	done := make(chan error, 1)
	s.enqueue(writeJob{
		run:        func(*sql.DB) error { return nil },
		onComplete: func(err error) { done <- err },
	})
	return <-done
}

// Shutdown drains the write queue and closes the database. It is safe to
// call more than once.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

// NewMeasurement creates an OPEN measurement stamped with the current
// persistence format version.
func (s *Store) NewMeasurement(modality model.Modality) (model.Measurement, error) {
	if modality == "" {
		modality = model.ModalityUnknown
	}
	m := model.Measurement{
		Status:            model.StatusOpen,
		Modality:          modality,
		FileFormatVersion: model.PersistenceFileFormatVersion,
		Timestamp:         timeutil.UnixMillis(s.clock),
	}
	res, err := s.db.Exec(
		`INSERT INTO measurements (status, modality, file_format_version, distance, timestamp)
		 VALUES (?, ?, ?, 0, ?)`,
		m.Status, m.Modality, m.FileFormatVersion, m.Timestamp,
	)
	if err != nil {
		return model.Measurement{}, fmt.Errorf("storage: insert measurement: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return model.Measurement{}, fmt.Errorf("storage: measurement id: %w", err)
	}
	return m, nil
}

const measurementColumns = `measurement_id, status, modality, file_format_version, distance, timestamp`

func scanMeasurement(row interface{ Scan(...any) error }) (model.Measurement, error) {
	var (
		m      model.Measurement
		status string
	)
	if err := row.Scan(&m.ID, &status, &m.Modality, &m.FileFormatVersion, &m.Distance, &m.Timestamp); err != nil {
		return model.Measurement{}, err
	}
	st, err := model.ParseMeasurementStatus(status)
	if err != nil {
		return model.Measurement{}, err
	}
	m.Status = st
	return m, nil
}

// LoadMeasurement returns the measurement with id.
func (s *Store) LoadMeasurement(id int64) (model.Measurement, error) {
	row := s.db.QueryRow(`SELECT `+measurementColumns+` FROM measurements WHERE measurement_id = ?`, id)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Measurement{}, &capterr.NoSuchMeasurementError{MeasurementID: id}
	}
	if err != nil {
		return model.Measurement{}, fmt.Errorf("storage: load measurement %d: %w", id, err)
	}
	return m, nil
}

// CurrentMeasurement returns the most recent measurement in one of the
// given statuses. The bool is false when there is none.
func (s *Store) CurrentMeasurement(statuses ...model.MeasurementStatus) (model.Measurement, bool, error) {
	if len(statuses) == 0 {
		statuses = []model.MeasurementStatus{model.StatusOpen, model.StatusPaused}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}
	row := s.db.QueryRow(
		`SELECT `+measurementColumns+` FROM measurements
		 WHERE status IN (`+placeholders+`)
		 ORDER BY measurement_id DESC LIMIT 1`, args...)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Measurement{}, false, nil
	}
	if err != nil {
		return model.Measurement{}, false, fmt.Errorf("storage: current measurement: %w", err)
	}
	return m, true, nil
}

// HasMeasurement reports whether any measurement has status.
func (s *Store) HasMeasurement(status model.MeasurementStatus) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM measurements WHERE status = ?`, status).Scan(&n); err != nil {
		return false, fmt.Errorf("storage: count measurements: %w", err)
	}
	return n > 0, nil
}

// SetStatus changes the status of measurement id.
func (s *Store) SetStatus(id int64, status model.MeasurementStatus) error {
	res, err := s.db.Exec(`UPDATE measurements SET status = ? WHERE measurement_id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("storage: set status of %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &capterr.NoSuchMeasurementError{MeasurementID: id}
	}
	return nil
}

// SetModality records a modality change for measurement id together with
// a MODALITY_TYPE_CHANGE event.
func (s *Store) SetModality(id int64, modality model.Modality) error {
	res, err := s.db.Exec(`UPDATE measurements SET modality = ? WHERE measurement_id = ?`, modality, id)
	if err != nil {
		return fmt.Errorf("storage: set modality of %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &capterr.NoSuchMeasurementError{MeasurementID: id}
	}
	_, err = s.LogEvent(id, model.EventModalityChange, string(modality))
	return err
}

// UpdateDistance queues the accumulated distance in meters for
// measurement id. Only an OPEN measurement is updated; otherwise onComplete
// receives a *capterr.NoSuchMeasurementError. onComplete, if set, runs on
// the writer goroutine.
func (s *Store) UpdateDistance(id int64, distance float64, onComplete func(error)) {
	s.enqueue(writeJob{
		run:        func(db *sql.DB) error { return updateDistance(db, id, distance) },
		onComplete: onComplete,
	})
}

func updateDistance(db *sql.DB, id int64, distance float64) error {
	res, err := db.Exec(
		`UPDATE measurements SET distance = ? WHERE measurement_id = ? AND status = ?`,
		distance, id, model.StatusOpen,
	)
	if err != nil {
		return fmt.Errorf("storage: update distance of %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &capterr.NoSuchMeasurementError{MeasurementID: id, Reason: "not open"}
	}
	return nil
}

// LogEvent appends a lifecycle event to measurement id.
func (s *Store) LogEvent(id int64, eventType model.EventType, value string) (model.Event, error) {
	e := model.Event{
		MeasurementID: id,
		Type:          eventType,
		Timestamp:     timeutil.UnixMillis(s.clock),
		Value:         value,
	}
	res, err := s.db.Exec(
		`INSERT INTO events (measurement_id, type, timestamp, value) VALUES (?, ?, ?, ?)`,
		e.MeasurementID, e.Type, e.Timestamp, e.Value,
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: log %s for %d: %w", eventType, id, err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: event id: %w", err)
	}
	return e, nil
}

// Events returns the events of measurement id in insertion order.
func (s *Store) Events(id int64) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT event_id, measurement_id, type, timestamp, COALESCE(value, '')
		 FROM events WHERE measurement_id = ? ORDER BY event_id`, id)
	if err != nil {
		return nil, fmt.Errorf("storage: events of %d: %w", id, err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.MeasurementID, &e.Type, &e.Timestamp, &e.Value); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
