// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package classify // import "github.com/hostwatch/hostwatch/internal/classify"

import (
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/health"
)

// Code is the short stable identifier external systems key alerts on. Codes
// never change meaning across releases; new conditions get new codes.
type Code string

// Generic codes used when no table entry matches.
const (
	CodeOk             Code = "HW000"
	CodeGenericError   Code = "HW001"
	CodeGenericWarning Code = "HW002"
)

// Workload-scoped codes. Even codes are errors, odd codes the paired warning.
const (
	CodeAppCPUError            Code = "HW010"
	CodeAppCPUWarning          Code = "HW011"
	CodeAppMemoryMBError       Code = "HW012"
	CodeAppMemoryMBWarning     Code = "HW013"
	CodeAppMemoryPctError      Code = "HW014"
	CodeAppMemoryPctWarning    Code = "HW015"
	CodeAppPortsError          Code = "HW016"
	CodeAppPortsWarning        Code = "HW017"
	CodeAppPortsPctError       Code = "HW018"
	CodeAppPortsPctWarning     Code = "HW019"
	CodeAppEphemeralError      Code = "HW020"
	CodeAppEphemeralWarning    Code = "HW021"
	CodeAppEphemeralPctError   Code = "HW022"
	CodeAppEphemeralPctWarning Code = "HW023"
	CodeAppHandlesError        Code = "HW024"
	CodeAppHandlesWarning      Code = "HW025"
	CodeAppHandlesPctError     Code = "HW026"
	CodeAppHandlesPctWarning   Code = "HW027"
	CodeAppThreadsError        Code = "HW028"
	CodeAppThreadsWarning      Code = "HW029"
	CodeAppPrivateBytesError   Code = "HW030"
	CodeAppPrivateBytesWarning Code = "HW031"
	CodeAppRGMemoryWarning     Code = "HW033" // warning-only: no paired error code
	CodeAppLockTableWarning    Code = "HW035" // warning-only: no paired error code
)

// Node-scoped codes.
const (
	CodeNodeCPUError            Code = "HW050"
	CodeNodeCPUWarning          Code = "HW051"
	CodeNodeMemoryMBError       Code = "HW052"
	CodeNodeMemoryMBWarning     Code = "HW053"
	CodeNodeMemoryPctError      Code = "HW054"
	CodeNodeMemoryPctWarning    Code = "HW055"
	CodeDiskSpacePctError       Code = "HW056"
	CodeDiskSpacePctWarning     Code = "HW057"
	CodeDiskSpaceMBError        Code = "HW058"
	CodeDiskSpaceMBWarning      Code = "HW059"
	CodeDiskQueueError          Code = "HW060"
	CodeDiskQueueWarning        Code = "HW061"
	CodeFolderSizeError         Code = "HW062"
	CodeFolderSizeWarning       Code = "HW063"
	CodeFirewallRulesError      Code = "HW064"
	CodeFirewallRulesWarning    Code = "HW065"
	CodeNodePortsError          Code = "HW066"
	CodeNodePortsWarning        Code = "HW067"
	CodeNodePortsPctError       Code = "HW068"
	CodeNodePortsPctWarning     Code = "HW069"
	CodeNodeEphemeralError      Code = "HW070"
	CodeNodeEphemeralWarning    Code = "HW071"
	CodeNodeEphemeralPctError   Code = "HW072"
	CodeNodeEphemeralPctWarning Code = "HW073"
	CodeNodeHandlesError        Code = "HW074"
	CodeNodeHandlesWarning      Code = "HW075"
	CodeNodeHandlesPctError     Code = "HW076"
	CodeNodeHandlesPctWarning   Code = "HW077"
	CodeCertExpiryError         Code = "HW078"
	CodeCertExpiryWarning       Code = "HW079"
	CodeDiskAvailableError      Code = "HW080"
	CodeDiskAvailableWarning    Code = "HW081"
)

func (c Code) String() string {
	return string(c)
}

type scope uint8

const (
	scopeApp scope = iota
	scopeNode
)

type tableKey struct {
	metric Metric
	scope  scope
	sev    health.Severity
}

var codeTable = map[tableKey]Code{
	// Workload metrics.
	{MetricCPUTimePercent, scopeApp, health.SeverityError}:          CodeAppCPUError,
	{MetricCPUTimePercent, scopeApp, health.SeverityWarning}:        CodeAppCPUWarning,
	{MetricMemoryUsageMB, scopeApp, health.SeverityError}:           CodeAppMemoryMBError,
	{MetricMemoryUsageMB, scopeApp, health.SeverityWarning}:         CodeAppMemoryMBWarning,
	{MetricMemoryUsagePercent, scopeApp, health.SeverityError}:      CodeAppMemoryPctError,
	{MetricMemoryUsagePercent, scopeApp, health.SeverityWarning}:    CodeAppMemoryPctWarning,
	{MetricActivePorts, scopeApp, health.SeverityError}:             CodeAppPortsError,
	{MetricActivePorts, scopeApp, health.SeverityWarning}:           CodeAppPortsWarning,
	{MetricActivePortsPercent, scopeApp, health.SeverityError}:      CodeAppPortsPctError,
	{MetricActivePortsPercent, scopeApp, health.SeverityWarning}:    CodeAppPortsPctWarning,
	{MetricEphemeralPorts, scopeApp, health.SeverityError}:          CodeAppEphemeralError,
	{MetricEphemeralPorts, scopeApp, health.SeverityWarning}:        CodeAppEphemeralWarning,
	{MetricEphemeralPortsPercent, scopeApp, health.SeverityError}:   CodeAppEphemeralPctError,
	{MetricEphemeralPortsPercent, scopeApp, health.SeverityWarning}: CodeAppEphemeralPctWarning,
	{MetricHandles, scopeApp, health.SeverityError}:                 CodeAppHandlesError,
	{MetricHandles, scopeApp, health.SeverityWarning}:               CodeAppHandlesWarning,
	{MetricHandlesPercent, scopeApp, health.SeverityError}:          CodeAppHandlesPctError,
	{MetricHandlesPercent, scopeApp, health.SeverityWarning}:        CodeAppHandlesPctWarning,
	{MetricThreadCount, scopeApp, health.SeverityError}:             CodeAppThreadsError,
	{MetricThreadCount, scopeApp, health.SeverityWarning}:           CodeAppThreadsWarning,
	{MetricPrivateBytesMB, scopeApp, health.SeverityError}:          CodeAppPrivateBytesError,
	{MetricPrivateBytesMB, scopeApp, health.SeverityWarning}:        CodeAppPrivateBytesWarning,
	{MetricRGMemoryPercent, scopeApp, health.SeverityWarning}:       CodeAppRGMemoryWarning,
	{MetricLockTablePercent, scopeApp, health.SeverityWarning}:      CodeAppLockTableWarning,

	// Node and volume metrics.
	{MetricCPUTimePercent, scopeNode, health.SeverityError}:          CodeNodeCPUError,
	{MetricCPUTimePercent, scopeNode, health.SeverityWarning}:        CodeNodeCPUWarning,
	{MetricMemoryUsageMB, scopeNode, health.SeverityError}:           CodeNodeMemoryMBError,
	{MetricMemoryUsageMB, scopeNode, health.SeverityWarning}:         CodeNodeMemoryMBWarning,
	{MetricMemoryUsagePercent, scopeNode, health.SeverityError}:      CodeNodeMemoryPctError,
	{MetricMemoryUsagePercent, scopeNode, health.SeverityWarning}:    CodeNodeMemoryPctWarning,
	{MetricDiskSpaceUsagePercent, scopeNode, health.SeverityError}:   CodeDiskSpacePctError,
	{MetricDiskSpaceUsagePercent, scopeNode, health.SeverityWarning}: CodeDiskSpacePctWarning,
	{MetricDiskSpaceUsageMB, scopeNode, health.SeverityError}:        CodeDiskSpaceMBError,
	{MetricDiskSpaceUsageMB, scopeNode, health.SeverityWarning}:      CodeDiskSpaceMBWarning,
	{MetricDiskQueueLength, scopeNode, health.SeverityError}:         CodeDiskQueueError,
	{MetricDiskQueueLength, scopeNode, health.SeverityWarning}:       CodeDiskQueueWarning,
	{MetricFolderSizeMB, scopeNode, health.SeverityError}:            CodeFolderSizeError,
	{MetricFolderSizeMB, scopeNode, health.SeverityWarning}:          CodeFolderSizeWarning,
	{MetricFirewallRules, scopeNode, health.SeverityError}:           CodeFirewallRulesError,
	{MetricFirewallRules, scopeNode, health.SeverityWarning}:         CodeFirewallRulesWarning,
	{MetricActivePorts, scopeNode, health.SeverityError}:             CodeNodePortsError,
	{MetricActivePorts, scopeNode, health.SeverityWarning}:           CodeNodePortsWarning,
	{MetricActivePortsPercent, scopeNode, health.SeverityError}:      CodeNodePortsPctError,
	{MetricActivePortsPercent, scopeNode, health.SeverityWarning}:    CodeNodePortsPctWarning,
	{MetricEphemeralPorts, scopeNode, health.SeverityError}:          CodeNodeEphemeralError,
	{MetricEphemeralPorts, scopeNode, health.SeverityWarning}:        CodeNodeEphemeralWarning,
	{MetricEphemeralPortsPercent, scopeNode, health.SeverityError}:   CodeNodeEphemeralPctError,
	{MetricEphemeralPortsPercent, scopeNode, health.SeverityWarning}: CodeNodeEphemeralPctWarning,
	{MetricHandles, scopeNode, health.SeverityError}:                 CodeNodeHandlesError,
	{MetricHandles, scopeNode, health.SeverityWarning}:               CodeNodeHandlesWarning,
	{MetricHandlesPercent, scopeNode, health.SeverityError}:          CodeNodeHandlesPctError,
	{MetricHandlesPercent, scopeNode, health.SeverityWarning}:        CodeNodeHandlesPctWarning,
	{MetricCertExpiryDays, scopeNode, health.SeverityError}:          CodeCertExpiryError,
	{MetricCertExpiryDays, scopeNode, health.SeverityWarning}:        CodeCertExpiryWarning,
	{MetricDiskAvailableMB, scopeNode, health.SeverityError}:         CodeDiskAvailableError,
	{MetricDiskAvailableMB, scopeNode, health.SeverityWarning}:       CodeDiskAvailableWarning,
}

// warningOnly lists metrics that never escalate past Warning no matter how far
// the observed value exceeds the configured error threshold.
var warningOnly = map[Metric]bool{
	MetricRGMemoryPercent:  true,
	MetricLockTablePercent: true,
}

// Classify resolves the stable code for a metric observed at the given
// severity on the given entity kind. ok is false when the combination has no
// assigned code; callers fall back to the generic codes.
func Classify(m Metric, kind entity.Kind, sev health.Severity) (Code, bool) {
	if sev == health.SeverityOk {
		return CodeOk, true
	}

	sc, known := scopeFor(kind)
	if !known {
		return "", false
	}

	code, ok := codeTable[tableKey{metric: m, scope: sc, sev: sev}]
	return code, ok
}

// WarningOnly reports whether the metric is capped at Warning severity.
func WarningOnly(m Metric) bool {
	return warningOnly[m]
}

// Fallback returns the generic code for a severity, used when Classify has no
// table entry for the combination.
func Fallback(sev health.Severity) Code {
	switch sev {
	case health.SeverityError:
		return CodeGenericError
	case health.SeverityWarning:
		return CodeGenericWarning
	default:
		return CodeOk
	}
}

func scopeFor(kind entity.Kind) (scope, bool) {
	switch {
	case kind.AppScoped():
		return scopeApp, true
	case kind.NodeScoped():
		return scopeNode, true
	default:
		return 0, false
	}
}
