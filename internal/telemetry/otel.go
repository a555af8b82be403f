// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package telemetry // import "github.com/hostwatch/hostwatch/internal/telemetry"

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/collector/consumer"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.uber.org/zap"
)

const (
	scopeName = "github.com/hostwatch/hostwatch"

	healthEventMetric = "hostwatch.health.event"
)

// OTelSink encodes payloads as OpenTelemetry gauge metrics and hands them to
// a metrics consumer, typically an OTLP exporter.
type OTelSink struct {
	next    consumer.Metrics
	version string
}

func NewOTelSink(next consumer.Metrics, version string) *OTelSink {
	return &OTelSink{next: next, version: version}
}

// ReportMetric emits the raw observed value as a gauge named after the metric.
func (s *OTelSink) ReportMetric(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	md := s.encode(p, metricName(p.Metric), p.Value, false)
	return s.next.ConsumeMetrics(ctx, md)
}

// ReportHealth emits a health state change as a gauge carrying the severity,
// code and message as data point attributes.
func (s *OTelSink) ReportHealth(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	md := s.encode(p, healthEventMetric, p.Value, true)
	return s.next.ConsumeMetrics(ctx, md)
}

func (s *OTelSink) Close() error {
	return nil
}

func (s *OTelSink) encode(p Payload, name string, value float64, healthEvent bool) pmetric.Metrics {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()

	attrs := rm.Resource().Attributes()
	attrs.PutStr("host.name", p.NodeName)
	attrs.PutStr("hostwatch.observer", p.Observer)
	attrs.PutStr("hostwatch.entity.id", p.EntityID)
	attrs.PutStr("hostwatch.entity.kind", p.EntityKind)
	attrs.PutStr("hostwatch.entity.name", p.EntityName)
	putIfSet(attrs, "os.type", p.OS)
	putIfSet(attrs, "hostwatch.run.id", p.RunID)
	putIfSet(attrs, "process.executable.name", p.ProcessName)
	putIfSet(attrs, "hostwatch.partition.id", p.PartitionID)
	putIfSet(attrs, "hostwatch.replica.id", p.ReplicaID)
	putIfSet(attrs, "container.id", p.ContainerID)
	if p.ProcessID > 0 {
		attrs.PutInt("process.pid", int64(p.ProcessID))
	}

	sm := rm.ScopeMetrics().AppendEmpty()
	sm.Scope().SetName(scopeName)
	sm.Scope().SetVersion(s.version)

	m := sm.Metrics().AppendEmpty()
	m.SetName(name)
	m.SetDescription(p.Metric)
	m.SetUnit(p.Unit)

	dp := m.SetEmptyGauge().DataPoints().AppendEmpty()
	dp.SetDoubleValue(value)
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	dp.SetTimestamp(pcommon.NewTimestampFromTime(ts))

	if healthEvent {
		dpAttrs := dp.Attributes()
		dpAttrs.PutStr("hostwatch.severity", p.Severity)
		dpAttrs.PutStr("hostwatch.code", p.Code)
		dpAttrs.PutStr("hostwatch.source.id", p.SourceID)
		dpAttrs.PutStr("hostwatch.property", p.Property)
		dpAttrs.PutStr("hostwatch.message", p.Message)
	}
	return md
}

func putIfSet(attrs pcommon.Map, key, value string) {
	if value != "" {
		attrs.PutStr(key, value)
	}
}

// metricName turns a metric label into an OpenTelemetry metric name:
// "CPU Time (Percent)" becomes "hostwatch.cpu.time.percent".
func metricName(label string) string {
	cleaned := strings.NewReplacer("(", "", ")", "").Replace(label)
	parts := strings.Fields(strings.ToLower(cleaned))
	return "hostwatch." + strings.Join(parts, ".")
}

// LoggingConsumer is a metrics consumer that records batch sizes to the
// process log. It backs deployments that want telemetry visible without an
// OTLP pipeline attached.
type LoggingConsumer struct {
	logger *zap.Logger
}

func NewLoggingConsumer(logger *zap.Logger) *LoggingConsumer {
	return &LoggingConsumer{logger: logger}
}

func (c *LoggingConsumer) Capabilities() consumer.Capabilities {
	return consumer.Capabilities{MutatesData: false}
}

func (c *LoggingConsumer) ConsumeMetrics(_ context.Context, md pmetric.Metrics) error {
	c.logger.Debug("Telemetry batch",
		zap.Int("resources", md.ResourceMetrics().Len()),
		zap.Int("data_points", md.DataPointCount()))
	return nil
}
