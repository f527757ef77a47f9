// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fsutil

import "golang.org/x/sys/unix"

// CanReadWrite reports whether the calling process may open path for
// reading and writing. It is how the capture binaries decide whether the
// location "permission" (access to the GNSS serial device) is granted.
func CanReadWrite(path string) bool {
	return unix.Access(path, unix.R_OK|unix.W_OK) == nil
}
