// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package worker

import (
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/storage"
)

// Persistence is the part of the store the worker writes through.
type Persistence interface {
	LoadMeasurement(id int64) (model.Measurement, error)
	StoreLocation(loc model.GeoLocation, id int64)
	StoreData(data model.CapturedData, id int64, onComplete func(error))
	UpdateDistance(id int64, distance float64, onComplete func(error))
	Shutdown() error
}

// OpenStore opens the SQLite store named by authority.
func OpenStore(authority string) (Persistence, error) {
	s, err := storage.Open(authority, nil)
	if err != nil {
		return nil, err
	}
	return s, nil
}
