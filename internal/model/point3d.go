// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

// Point3D is one 3-axis sample of an accelerometer (m/s²), gyroscope (rad/s)
// or magnetometer (µT).
type Point3D struct {
	Timestamp int64   `json:"t"` // ms since Unix epoch
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
	Z         float32 `json:"z"`
}

// Pressure is one barometer sample.
type Pressure struct {
	Timestamp int64   `json:"t"` // ms since Unix epoch
	Value     float64 `json:"p"` // hPa
}
