// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fsutil provides the filesystem checks used by the capture path:
// free disk space and device access.
package fsutil

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// SpaceChecker reports the free bytes available to unprivileged writers on
// the filesystem holding path.
type SpaceChecker interface {
	FreeBytes(path string) (uint64, error)
}

// StatfsSpace implements SpaceChecker with statfs(2).
type StatfsSpace struct{}

func (StatfsSpace) FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	dir := filepath.Dir(path)
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// FixedSpace is a SpaceChecker that always reports the same value.
type FixedSpace uint64

func (f FixedSpace) FreeBytes(string) (uint64, error) { return uint64(f), nil }

// SpacePolicy answers whether there is room to keep writing.
type SpacePolicy struct {
	Checker  SpaceChecker
	Path     string
	MinBytes uint64
}

// Sufficient reports whether at least MinBytes are free. A failed check
// counts as sufficient so a broken statfs never stops a capture.
func (p SpacePolicy) Sufficient() (bool, error) {
	if p.Checker == nil || p.MinBytes == 0 {
		return true, nil
	}
	free, err := p.Checker.FreeBytes(p.Path)
	if err != nil {
		return true, err
	}
	return free >= p.MinBytes, nil
}
