// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

import (
	"fmt"
	"strings"
)

// PersistenceFileFormatVersion is the on-disk format written by this
// version of the capture core. Resuming a measurement written with another
// version is a configuration error.
const PersistenceFileFormatVersion int16 = 3

// MeasurementStatus is the persisted lifecycle state of a measurement.
type MeasurementStatus string

const (
	StatusOpen     MeasurementStatus = "OPEN"
	StatusPaused   MeasurementStatus = "PAUSED"
	StatusFinished MeasurementStatus = "FINISHED"
)

// ParseMeasurementStatus converts a stored status string.
func ParseMeasurementStatus(s string) (MeasurementStatus, error) {
	switch st := MeasurementStatus(s); st {
	case StatusOpen, StatusPaused, StatusFinished:
		return st, nil
	}
	return "", fmt.Errorf("unknown measurement status %q", s)
}

// Modality is the transport mode the user selected for a measurement.
type Modality string

const (
	ModalityUnknown Modality = "UNKNOWN"
	ModalityBicycle Modality = "BICYCLE"
	ModalityCar     Modality = "CAR"
	ModalityWalking Modality = "WALKING"
	ModalityBus     Modality = "BUS"
	ModalityTrain   Modality = "TRAIN"
)

// ParseModality accepts a modality name in any letter case.
func ParseModality(s string) (Modality, error) {
	switch m := Modality(strings.ToUpper(s)); m {
	case ModalityUnknown, ModalityBicycle, ModalityCar, ModalityWalking, ModalityBus, ModalityTrain:
		return m, nil
	}
	return "", fmt.Errorf("unknown modality %q", s)
}

// Measurement is one capture session. Only the id travels through the core;
// the rest is owned by persistence.
type Measurement struct {
	ID                int64             `json:"id"`
	Status            MeasurementStatus `json:"status"`
	Modality          Modality          `json:"modality"`
	FileFormatVersion int16             `json:"file_format_version"`
	Distance          float64           `json:"distance"` // meters
	Timestamp         int64             `json:"timestamp"`
}

// EventType names a persisted lifecycle event.
type EventType string

const (
	EventLifecycleStart  EventType = "LIFECYCLE_START"
	EventLifecyclePause  EventType = "LIFECYCLE_PAUSE"
	EventLifecycleResume EventType = "LIFECYCLE_RESUME"
	EventLifecycleStop   EventType = "LIFECYCLE_STOP"
	EventModalityChange  EventType = "MODALITY_TYPE_CHANGE"
)

// Event is a persisted lifecycle event of a measurement.
type Event struct {
	ID            int64     `json:"id"`
	MeasurementID int64     `json:"measurement_id"`
	Type          EventType `json:"type"`
	Timestamp     int64     `json:"timestamp"`
	Value         string    `json:"value,omitempty"`
}
