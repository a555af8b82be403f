// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hostwatch",
	Short: "Per-node resource usage watchdog",
	Long: `Hostwatch watches the resources of the node it runs on: whole-node CPU,
memory, ports and file handles, disk space and queue depth, the processes of
configured workloads (including their children), and certificate expiry.

Readings are averaged over a short sampling burst, compared against warning
and error thresholds, and turned into health reports with a bounded lifetime.
Continuing breaches are re-reported each cycle; resolved ones are closed with
a final Ok report.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default hostwatch.yaml in . or /etc/hostwatch/)")
	rootCmd.AddCommand(runCmd, checkCmd, versionCmd)
}
