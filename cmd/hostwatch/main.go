// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Hostwatch is a per-node resource watchdog. It samples host, disk and
// process usage on a schedule, evaluates the readings against configured
// thresholds and files health reports about what it finds.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
