// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package device

import "os"

func sysReadFile(file string) ([]byte, error) {
	return os.ReadFile(file)
}
