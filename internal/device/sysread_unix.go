// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package device

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// sysReadFile is a simplified os.ReadFile that invokes syscall.Read directly.
// Some hwmon drivers return EAGAIN, which makes os.ReadFile poll forever.
func sysReadFile(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	b := make([]byte, 128)
	n, err := unix.Read(int(f.Fd()), b)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("failed to read file: %q, read returned negative bytes value: %d", file, n)
	}
	return b[:n], nil
}
