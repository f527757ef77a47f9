// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(n int) []Point3D {
	out := make([]Point3D, n)
	for i := range out {
		out[i] = Point3D{Timestamp: int64(i), X: float32(i)}
	}
	return out
}

func TestCapturedData_Lengths(t *testing.T) {
	d := CapturedData{
		Accelerations: points(3),
		Rotations:     points(7),
		Pressures:     []Pressure{{Timestamp: 1, Value: 1013.25}},
	}
	assert.Equal(t, 7, d.MaxLen())
	assert.Equal(t, 11, d.Len())
	assert.False(t, d.Empty())
	assert.True(t, CapturedData{}.Empty())
}

func TestCapturedData_SliceClampsPerChannel(t *testing.T) {
	d := CapturedData{
		Accelerations: points(3),
		Rotations:     points(7),
	}

	got := d.Slice(2, 5)
	want := CapturedData{
		Accelerations: []Point3D{{Timestamp: 2, X: 2}},
		Rotations:     []Point3D{{Timestamp: 2, X: 2}, {Timestamp: 3, X: 3}, {Timestamp: 4, X: 4}},
		Directions:    []Point3D{},
		Pressures:     []Pressure{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Slice(2, 5) mismatch (-want +got):\n%s", diff)
	}

	beyond := d.Slice(5, 10)
	assert.Empty(t, beyond.Accelerations)
	assert.Len(t, beyond.Rotations, 2)
}

func TestCapturedData_SliceDoesNotAlias(t *testing.T) {
	d := CapturedData{Accelerations: points(2)}
	s := d.Slice(0, 2)
	s.Accelerations[0].X = 99
	assert.Equal(t, float32(0), d.Accelerations[0].X)
}

func TestParseMeasurementStatus(t *testing.T) {
	for _, s := range []string{"OPEN", "PAUSED", "FINISHED"} {
		st, err := ParseMeasurementStatus(s)
		require.NoError(t, err)
		assert.Equal(t, MeasurementStatus(s), st)
	}
	_, err := ParseMeasurementStatus("SYNCED")
	assert.Error(t, err)
}

func TestParseModality(t *testing.T) {
	m, err := ParseModality("bicycle")
	require.NoError(t, err)
	assert.Equal(t, ModalityBicycle, m)

	_, err = ParseModality("ROCKET")
	assert.Error(t, err)
}
