// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"database/sql"
	"fmt"

	"github.com/relabs-tech/trip_capture/internal/model"
)

const (
	sensorAccelerometer = "accelerometer"
	sensorGyroscope     = "gyroscope"
	sensorMagnetometer  = "magnetometer"
)

// StoreLocation queues loc for measurement id. Failures are logged.
func (s *Store) StoreLocation(loc model.GeoLocation, id int64) {
	s.enqueue(writeJob{run: func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO locations
			 (measurement_id, timestamp, lat, lon, altitude, speed, accuracy, vertical_accuracy, is_valid)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, loc.Timestamp, loc.Latitude, loc.Longitude, nullFloat(loc.Altitude),
			loc.Speed, loc.Accuracy, nullFloat(loc.VerticalAccuracy), loc.IsValid,
		)
		if err != nil {
			return fmt.Errorf("storage: insert location for %d: %w", id, err)
		}
		return nil
	}})
}

// StoreData queues a sensor batch for measurement id. onComplete, if set,
// runs on the writer goroutine once the batch is committed or failed.
func (s *Store) StoreData(data model.CapturedData, id int64, onComplete func(error)) {
	s.enqueue(writeJob{
		run:        func(db *sql.DB) error { return insertBatch(db, data, id) },
		onComplete: onComplete,
	})
}

func insertBatch(db *sql.DB, data model.CapturedData, id int64) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	points, err := tx.Prepare(
		`INSERT INTO points3d (measurement_id, sensor, timestamp, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare points: %w", err)
	}
	defer points.Close()

	for _, ch := range []struct {
		sensor string
		data   []model.Point3D
	}{
		{sensorAccelerometer, data.Accelerations},
		{sensorGyroscope, data.Rotations},
		{sensorMagnetometer, data.Directions},
	} {
		for _, p := range ch.data {
			if _, err = points.Exec(id, ch.sensor, p.Timestamp, p.X, p.Y, p.Z); err != nil {
				return fmt.Errorf("storage: insert %s point: %w", ch.sensor, err)
			}
		}
	}

	if len(data.Pressures) > 0 {
		pressures, perr := tx.Prepare(`INSERT INTO pressures (measurement_id, timestamp, value) VALUES (?, ?, ?)`)
		if perr != nil {
			return fmt.Errorf("storage: prepare pressures: %w", perr)
		}
		defer pressures.Close()
		for _, p := range data.Pressures {
			if _, err = pressures.Exec(id, p.Timestamp, p.Value); err != nil {
				return fmt.Errorf("storage: insert pressure: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit batch: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// Locations returns the stored locations of measurement id in timestamp
// order.
func (s *Store) Locations(id int64) ([]model.GeoLocation, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, lat, lon, altitude, speed, accuracy, vertical_accuracy, is_valid
		 FROM locations WHERE measurement_id = ? ORDER BY timestamp, location_id`, id)
	if err != nil {
		return nil, fmt.Errorf("storage: locations of %d: %w", id, err)
	}
	defer rows.Close()

	var locs []model.GeoLocation
	for rows.Next() {
		var (
			loc           model.GeoLocation
			altitude, vAc sql.NullFloat64
		)
		if err := rows.Scan(&loc.Timestamp, &loc.Latitude, &loc.Longitude, &altitude,
			&loc.Speed, &loc.Accuracy, &vAc, &loc.IsValid); err != nil {
			return nil, err
		}
		if altitude.Valid {
			loc.Altitude = model.Float64(altitude.Float64)
		}
		if vAc.Valid {
			loc.VerticalAccuracy = model.Float64(vAc.Float64)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// DataCounts is the number of stored samples per sensor channel.
type DataCounts struct {
	Accelerations int
	Rotations     int
	Directions    int
	Pressures     int
}

// DataCounts returns how many samples of each channel are stored for
// measurement id.
func (s *Store) DataCounts(id int64) (DataCounts, error) {
	var c DataCounts
	rows, err := s.db.Query(
		`SELECT sensor, COUNT(*) FROM points3d WHERE measurement_id = ? GROUP BY sensor`, id)
	if err != nil {
		return c, fmt.Errorf("storage: count points of %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sensor string
			n      int
		)
		if err := rows.Scan(&sensor, &n); err != nil {
			return c, err
		}
		switch sensor {
		case sensorAccelerometer:
			c.Accelerations = n
		case sensorGyroscope:
			c.Rotations = n
		case sensorMagnetometer:
			c.Directions = n
		}
	}
	if err := rows.Err(); err != nil {
		return c, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pressures WHERE measurement_id = ?`, id).Scan(&c.Pressures); err != nil {
		return c, fmt.Errorf("storage: count pressures of %d: %w", id, err)
	}
	return c, nil
}
