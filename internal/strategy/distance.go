// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package strategy holds the pluggable collaborators the worker consults:
// distance calculation, location cleaning and event handling.
package strategy

import (
	"math"

	"github.com/relabs-tech/trip_capture/internal/model"
)

const earthRadiusMeters = 6_371_000.0

// DistanceCalculation returns the distance in meters between two locations.
type DistanceCalculation interface {
	CalculateDistance(previous, next model.GeoLocation) float64
}

// HaversineDistance is the great-circle distance on a spherical earth.
type HaversineDistance struct{}

func (HaversineDistance) CalculateDistance(previous, next model.GeoLocation) float64 {
	lat1 := previous.Latitude * math.Pi / 180
	lat2 := next.Latitude * math.Pi / 180
	dLat := (next.Latitude - previous.Latitude) * math.Pi / 180
	dLon := (next.Longitude - previous.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
