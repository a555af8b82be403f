// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package classify // import "github.com/hostwatch/hostwatch/internal/classify"

import "strings"

// Metric names one monitored resource dimension. The values double as the
// human-readable metric labels carried on reports and telemetry.
type Metric string

const (
	MetricCPUTimePercent        Metric = "CPU Time (Percent)"
	MetricMemoryUsageMB         Metric = "Memory Usage (MB)"
	MetricMemoryUsagePercent    Metric = "Memory Usage (Percent)"
	MetricDiskSpaceUsageMB      Metric = "Disk Space Usage (MB)"
	MetricDiskSpaceUsagePercent Metric = "Disk Space Usage (Percent)"
	MetricDiskAvailableMB       Metric = "Disk Space Available (MB)"
	MetricDiskQueueLength       Metric = "Average Disk Queue Length"
	MetricFolderSizeMB          Metric = "Folder Size (MB)"
	MetricFirewallRules         Metric = "Active Firewall Rules"
	MetricActivePorts           Metric = "Total Active Ports"
	MetricActivePortsPercent    Metric = "Total Active Ports (Percent)"
	MetricEphemeralPorts        Metric = "Ephemeral Ports"
	MetricEphemeralPortsPercent Metric = "Ephemeral Ports (Percent)"
	MetricHandles               Metric = "Allocated File Handles"
	MetricHandlesPercent        Metric = "Allocated File Handles (Percent)"
	MetricThreadCount           Metric = "Thread Count"
	MetricPrivateBytesMB        Metric = "Private Bytes (MB)"
	MetricRGMemoryPercent       Metric = "RG Memory Usage (Percent)"
	MetricLockTablePercent      Metric = "Lock Table Usage (Percent)"
	MetricCertExpiryDays        Metric = "Certificate Expiration (Days)"
)

func (m Metric) String() string {
	return string(m)
}

// Unit derives the measurement unit from the metric label.
func (m Metric) Unit() string {
	s := string(m)
	switch {
	case strings.Contains(s, "(Percent)"):
		return "%"
	case strings.Contains(s, "(MB)"):
		return "MB"
	case strings.Contains(s, "(Days)"):
		return "days"
	default:
		return ""
	}
}
