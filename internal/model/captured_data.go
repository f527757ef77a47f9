// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

// CapturedData is an immutable batch of all sensor samples captured since the
// previous flush. The four channels are filled and cleared together.
type CapturedData struct {
	Accelerations []Point3D  `json:"accelerations"`
	Rotations     []Point3D  `json:"rotations"`
	Directions    []Point3D  `json:"directions"`
	Pressures     []Pressure `json:"pressures"`
}

// MaxLen returns the length of the longest channel.
func (d CapturedData) MaxLen() int {
	return max(len(d.Accelerations), len(d.Rotations), len(d.Directions), len(d.Pressures))
}

// Len returns the total number of samples over all channels.
func (d CapturedData) Len() int {
	return len(d.Accelerations) + len(d.Rotations) + len(d.Directions) + len(d.Pressures)
}

// Empty reports whether no channel holds a sample.
func (d CapturedData) Empty() bool {
	return d.Len() == 0
}

// Slice returns the samples in [from, to) of every channel. Bounds are
// clamped per channel, so a channel shorter than from yields an empty slice.
// The returned slices share no backing array with d.
func (d CapturedData) Slice(from, to int) CapturedData {
	return CapturedData{
		Accelerations: window(d.Accelerations, from, to),
		Rotations:     window(d.Rotations, from, to),
		Directions:    window(d.Directions, from, to),
		Pressures:     window(d.Pressures, from, to),
	}
}

func window[T any](s []T, from, to int) []T {
	if from >= len(s) || from >= to {
		return []T{}
	}
	to = min(to, len(s))
	out := make([]T, to-from)
	copy(out, s[from:to])
	return out
}
