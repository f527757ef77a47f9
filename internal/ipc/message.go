// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ipc is the bound channel between a controller and the capture
// worker: a websocket carrying JSON messages in both directions.
package ipc

import "github.com/relabs-tech/trip_capture/internal/model"

// What identifies the kind of a Message.
type What string

const (
	// client -> worker
	RegisterClient What = "REGISTER_CLIENT"
	StartCapturing What = "START_CAPTURING"
	StopCapturing  What = "STOP_CAPTURING"

	// worker -> clients
	LocationCaptured     What = "LOCATION_CAPTURED"
	DataCaptured         What = "DATA_CAPTURED"
	GeolocationFix       What = "GEOLOCATION_FIX"
	NoGeolocationFix     What = "NO_GEOLOCATION_FIX"
	ServiceStopped       What = "SERVICE_STOPPED"
	ServiceStoppedItself What = "SERVICE_STOPPED_ITSELF"
)

// Message is the envelope exchanged over the bound channel. Only the
// fields relevant to What are set.
type Message struct {
	What          What                `json:"what"`
	ClientID      string              `json:"client_id,omitempty"`
	MeasurementID int64               `json:"measurement_id,omitempty"`
	Success       bool                `json:"success,omitempty"`
	Location      *model.GeoLocation  `json:"location,omitempty"`
	Data          *model.CapturedData `json:"data,omitempty"`
	Start         *StartCommand       `json:"start,omitempty"`
}

// StartCommand carries everything a worker needs to begin capturing.
// Strategies travel as registry names because objects cannot cross the
// process boundary.
type StartCommand struct {
	MeasurementID int64 `json:"measurement_id"`
	// Authority is the persistence location both processes open.
	Authority                string `json:"authority"`
	DistanceStrategy         string `json:"distance_strategy"`
	LocationCleaningStrategy string `json:"location_cleaning_strategy"`
	EventHandlingStrategy    string `json:"event_handling_strategy"`
	SensorFrequencyHz        int    `json:"sensor_frequency_hz"`
	NotificationChannelID    string `json:"notification_channel_id"`
	// CaptureSensors false selects location-only capture.
	CaptureSensors bool `json:"capture_sensors"`
}
