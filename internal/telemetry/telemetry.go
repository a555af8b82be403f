// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry carries observed values and health events to an external
// telemetry pipeline. Emission is best effort: the monitoring loop never
// blocks on, or fails because of, a telemetry backend.
package telemetry // import "github.com/hostwatch/hostwatch/internal/telemetry"

import (
	"context"
	"time"
)

// Payload is the full description of one observation. Every field that is
// known at emission time is populated, whichever path the payload takes, so
// downstream consumers never see partially described events.
type Payload struct {
	NodeName   string
	Observer   string
	EntityID   string
	EntityName string
	EntityKind string

	Metric string
	Unit   string
	Value  float64

	Severity string
	Code     string
	Message  string

	SourceID string
	Property string

	ProcessID   int32
	ProcessName string
	PartitionID string
	ReplicaID   string
	ContainerID string

	RunID     string
	OS        string
	Timestamp time.Time
}

// Sink receives payloads. ReportMetric carries raw observed values on every
// cycle; ReportHealth carries state-change events.
type Sink interface {
	ReportMetric(ctx context.Context, p Payload) error
	ReportHealth(ctx context.Context, p Payload) error
	Close() error
}

// NopSink discards everything. Used when telemetry is disabled.
type NopSink struct{}

func NewNopSink() NopSink {
	return NopSink{}
}

func (NopSink) ReportMetric(context.Context, Payload) error {
	return nil
}

func (NopSink) ReportHealth(context.Context, Payload) error {
	return nil
}

func (NopSink) Close() error {
	return nil
}
