// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gps is the GNSS backend of the capture core: it reads NMEA
// sentences from a serial receiver and delivers them as platform location
// events.
package gps

import (
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/trip_capture/internal/model"
)

const (
	knotsToMetersPerSecond = 0.514444
	// userRangeError turns a dilution of precision into meters.
	userRangeError = 5.0
)

// Fix accumulates the state of one receiver across sentence types. RMC
// supplies position, time and speed; GGA altitude and horizontal DOP; GSA
// the vertical DOP.
type Fix struct {
	Time      time.Time
	Latitude  float64 // decimal degrees
	Longitude float64 // decimal degrees
	Altitude  *float64
	SpeedMS   float64
	CourseDeg float64
	HDOP      float64
	VDOP      float64
	Quality   string // GGA fix quality, "0" is invalid
	Valid     bool   // RMC validity "A"
}

// GeoLocation converts the fix for the capture core.
func (f Fix) GeoLocation() model.GeoLocation {
	loc := model.GeoLocation{
		Timestamp: f.Time.UnixMilli(),
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Altitude:  f.Altitude,
		Speed:     f.SpeedMS,
		Accuracy:  f.HDOP * userRangeError,
	}
	if f.VDOP > 0 {
		loc.VerticalAccuracy = model.Float64(f.VDOP * userRangeError)
	}
	return loc
}

// sentenceTime combines an NMEA date and time in UTC. Two-digit years are
// taken as 20xx.
func sentenceTime(d nmea.Date, t nmea.Time) time.Time {
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
