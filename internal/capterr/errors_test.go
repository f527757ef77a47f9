// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package capterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationError_Wrapping(t *testing.T) {
	cause := errors.New("version 2 not supported")
	err := fmt.Errorf("worker start: %w", &ConfigurationError{Reason: "file format", Err: cause})

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "file format", cfgErr.Reason)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "configuration error: file format: version 2 not supported")
}

func TestConfiguration_Formats(t *testing.T) {
	err := Configuration("missing %s", "measurement id")
	assert.EqualError(t, err, "configuration error: missing measurement id")
}

func TestErrorMessages(t *testing.T) {
	assert.EqualError(t, &MissingCapabilityError{Capability: "location"}, "missing capability: location")
	assert.EqualError(t, &NoActiveSessionError{Operation: "stop"}, "stop: no active measurement")
	assert.EqualError(t, &IllegalStateError{Reason: "not bound"}, "illegal state: not bound")
	assert.EqualError(t, &NoSuchMeasurementError{MeasurementID: 3}, "no such measurement: 3")
	assert.EqualError(t, &NoSuchMeasurementError{MeasurementID: 3, Reason: "not OPEN"}, "no such measurement: 3 (not OPEN)")
}
