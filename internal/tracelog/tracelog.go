// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package tracelog emits structured diagnostic events for every observation
// the watchdog makes. It is a local, always-available companion to the
// telemetry pipeline: same payload, rendered through the process logger.
package tracelog // import "github.com/hostwatch/hostwatch/internal/tracelog"

import (
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/telemetry"
)

// Event names attached to structured trace records.
const (
	EventUsage      = "usage.observed"
	EventTransition = "health.transition"
	EventCleared    = "health.cleared"
)

type Sink struct {
	logger  *zap.Logger
	enabled bool
}

func New(logger *zap.Logger, enabled bool) *Sink {
	return &Sink{logger: logger, enabled: enabled}
}

// Enabled reports whether events are being written.
func (s *Sink) Enabled() bool {
	return s.enabled
}

// LogStructured writes one event with the complete payload flattened into
// fields. Disabled sinks drop the event without formatting cost.
func (s *Sink) LogStructured(event string, p telemetry.Payload) {
	if !s.enabled {
		return
	}

	s.logger.Info(event,
		zap.String("observer", p.Observer),
		zap.String("entity_id", p.EntityID),
		zap.String("entity_name", p.EntityName),
		zap.String("entity_kind", p.EntityKind),
		zap.String("node", p.NodeName),
		zap.String("metric", p.Metric),
		zap.String("unit", p.Unit),
		zap.Float64("value", p.Value),
		zap.String("severity", p.Severity),
		zap.String("code", p.Code),
		zap.String("message", p.Message),
		zap.String("source_id", p.SourceID),
		zap.String("property", p.Property),
		zap.Int32("pid", p.ProcessID),
		zap.String("process", p.ProcessName),
		zap.String("partition_id", p.PartitionID),
		zap.String("replica_id", p.ReplicaID),
		zap.String("container_id", p.ContainerID),
		zap.String("run_id", p.RunID),
		zap.String("os", p.OS))
}
