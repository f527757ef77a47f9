// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package strategy

import "github.com/relabs-tech/trip_capture/internal/model"

// LocationCleaning decides whether a location is plausible enough to count
// towards the distance.
type LocationCleaning interface {
	IsClean(loc model.GeoLocation) bool
}

const (
	upperSpeedThreshold    = 100.0 // m/s
	lowerSpeedThreshold    = 1.0   // m/s
	upperAccuracyThreshold = 20.0  // m
)

// DefaultLocationCleaning rejects inaccurate fixes and standing or
// implausibly fast movement.
type DefaultLocationCleaning struct{}

func (DefaultLocationCleaning) IsClean(loc model.GeoLocation) bool {
	return loc.Speed > lowerSpeedThreshold &&
		loc.Accuracy < upperAccuracyThreshold &&
		loc.Speed < upperSpeedThreshold
}

// PermissiveLocationCleaning accepts every location.
type PermissiveLocationCleaning struct{}

func (PermissiveLocationCleaning) IsClean(model.GeoLocation) bool { return true }
