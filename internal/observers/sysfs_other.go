// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package observers // import "github.com/hostwatch/hostwatch/internal/observers"

func fileHandleUsage() (used, max float64, err error) {
	return 0, 0, errUnsupportedStat
}

func ephemeralPortRange() (lo, hi int, err error) {
	return defaultEphemeralLow, defaultEphemeralHigh, nil
}
