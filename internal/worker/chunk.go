// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package worker

import "github.com/relabs-tech/trip_capture/internal/model"

// DefaultChunkSize is the number of points per channel in one DATA_CAPTURED
// message.
const DefaultChunkSize = 800

// Chunk splits data into pieces of at most size points per channel and
// calls fn for each piece in order. Every point is passed exactly once.
// It returns the number of chunks.
func Chunk(data model.CapturedData, size int, fn func(model.CapturedData)) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	n := data.MaxLen()
	chunks := 0
	for i := 0; i < n; i += size {
		fn(data.Slice(i, i+size))
		chunks++
	}
	return chunks
}

// ChunkCount is the number of chunks Chunk produces for a batch whose
// longest channel has maxLen points.
func ChunkCount(maxLen, size int) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return (maxLen + size - 1) / size
}
