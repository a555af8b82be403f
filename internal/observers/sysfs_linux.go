// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package observers // import "github.com/hostwatch/hostwatch/internal/observers"

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// fileHandleUsage reads the kernel file handle counters: allocated handles
// and the configured maximum.
func fileHandleUsage() (used, max float64, err error) {
	raw, err := os.ReadFile("/proc/sys/fs/file-nr")
	if err != nil {
		return 0, 0, fmt.Errorf("read file-nr: %w", err)
	}
	// Three columns: allocated, unused-but-allocated, maximum.
	fields := strings.Fields(string(raw))
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("unexpected file-nr format: %q", strings.TrimSpace(string(raw)))
	}
	alloc, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse file-nr allocated: %w", err)
	}
	limit, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse file-nr maximum: %w", err)
	}
	return alloc, limit, nil
}

// ephemeralPortRange reads the local port range the kernel hands out to
// outbound connections.
func ephemeralPortRange() (lo, hi int, err error) {
	raw, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return defaultEphemeralLow, defaultEphemeralHigh, nil
	}
	fields := strings.Fields(string(raw))
	if len(fields) != 2 {
		return defaultEphemeralLow, defaultEphemeralHigh, nil
	}
	lo, loErr := strconv.Atoi(fields[0])
	hi, hiErr := strconv.Atoi(fields[1])
	if loErr != nil || hiErr != nil || lo <= 0 || hi < lo {
		return defaultEphemeralLow, defaultEphemeralHigh, nil
	}
	return lo, hi, nil
}
