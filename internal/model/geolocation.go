// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

// GeoLocation represents a single location fix suitable for JSON, IPC and
// persistence.
//
// Altitude and VerticalAccuracy are nil when the provider did not report
// them. A missing reading is never stored as zero.
type GeoLocation struct {
	Timestamp        int64    `json:"timestamp"`                   // ms since Unix epoch
	Latitude         float64  `json:"lat"`                         // decimal degrees
	Longitude        float64  `json:"lon"`                         // decimal degrees
	Altitude         *float64 `json:"altitude,omitempty"`          // m above WGS84
	Speed            float64  `json:"speed"`                       // m/s over ground
	Accuracy         float64  `json:"accuracy"`                    // horizontal, m
	VerticalAccuracy *float64 `json:"vertical_accuracy,omitempty"` // m
	IsValid          bool     `json:"valid"`
}

// Float64 returns a pointer to v, for optional location fields.
func Float64(v float64) *float64 {
	return &v
}
