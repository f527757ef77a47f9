// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package capterr defines the categorized errors surfaced by the capture
// core. Only these categories cross the process boundary; callers match them
// with errors.As.
package capterr

import "fmt"

// ConfigurationError is fatal: malformed endpoint, missing start parameters,
// incompatible persisted format or an uncorrectable sensor timebase.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configuration builds a ConfigurationError with a formatted reason.
func Configuration(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// MissingCapabilityError reports a permission the caller can request and
// then retry.
type MissingCapabilityError struct {
	Capability string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("missing capability: %s", e.Capability)
}

// NoActiveSessionError reports a stop, pause or resume without a matching
// OPEN or PAUSED measurement.
type NoActiveSessionError struct {
	Operation string
}

func (e *NoActiveSessionError) Error() string {
	return fmt.Sprintf("%s: no active measurement", e.Operation)
}

// IllegalStateError reports a caller bug such as disconnecting twice.
type IllegalStateError struct {
	Reason string
}

func (e *IllegalStateError) Error() string {
	return "illegal state: " + e.Reason
}

// NoSuchMeasurementError is returned by persistence when a measurement is
// missing or not in the status an operation requires.
type NoSuchMeasurementError struct {
	MeasurementID int64
	Reason        string
}

func (e *NoSuchMeasurementError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("no such measurement: %d", e.MeasurementID)
	}
	return fmt.Sprintf("no such measurement: %d (%s)", e.MeasurementID, e.Reason)
}
