// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package report // import "github.com/hostwatch/hostwatch/internal/report"

import (
	"fmt"
	"strings"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/telemetry"
)

// SourceID builds the stable report source for an observer/code pair.
// Re-emitting under the same source replaces the prior report.
func SourceID(observer string, code classify.Code) string {
	return fmt.Sprintf("%s(%s)", observer, code)
}

// Property builds the stable report property for a kind/metric pair.
func Property(kind entity.Kind, metric classify.Metric) string {
	return string(kind) + ":" + string(metric)
}

func (r *Reporter) buildReport(obs Observation, sev health.Severity, code classify.Code, sourceID, property, message string) health.Report {
	d := obs.Entity
	return health.Report{
		EntityID:   d.ID(),
		EntityName: d.Name,
		EntityKind: d.Kind,
		NodeName:   d.NodeName,
		Observer:   obs.Observer,
		SourceID:   sourceID,
		Property:   property,
		Metric:     string(obs.Metric),
		Code:       string(code),
		Severity:   sev,
		Value:      obs.Decision.Value,
		Message:    message,
		TTL:        obs.TTL,
		Timestamp:  r.now(),
	}
}

// basePayload populates every entity field so the payload can stand alone as
// telemetry even where health reporting is the only consumer.
func (r *Reporter) basePayload(obs Observation) telemetry.Payload {
	d := obs.Entity
	return telemetry.Payload{
		NodeName:    d.NodeName,
		Observer:    obs.Observer,
		EntityID:    d.ID(),
		EntityName:  d.Name,
		EntityKind:  string(d.Kind),
		Metric:      string(obs.Metric),
		Unit:        obs.Metric.Unit(),
		Value:       obs.Decision.Value,
		ProcessID:   d.ProcessID,
		ProcessName: d.ProcessName,
		PartitionID: d.PartitionID,
		ReplicaID:   d.ReplicaID,
		ContainerID: d.ContainerID,
		RunID:       obs.RunID,
		OS:          r.osName,
		Timestamp:   r.now(),
	}
}

func (r *Reporter) healthPayload(obs Observation, rep health.Report) telemetry.Payload {
	p := r.basePayload(obs)
	p.Severity = string(rep.Severity)
	p.Code = rep.Code
	p.Message = rep.Message
	p.SourceID = rep.SourceID
	p.Property = rep.Property
	return p
}

func breachMessage(obs Observation) string {
	return fmt.Sprintf("%s has breached the %s threshold: %s (threshold %s)",
		obs.Metric,
		strings.ToLower(string(obs.Decision.Severity)),
		formatAmount(obs.Decision.Value, obs.Metric.Unit()),
		formatAmount(obs.Decision.Threshold, obs.Metric.Unit()))
}

func clearedMessage(obs Observation) string {
	return fmt.Sprintf("%s has returned within configured thresholds: %s",
		obs.Metric,
		formatAmount(obs.Decision.Value, obs.Metric.Unit()))
}

func formatAmount(v float64, unit string) string {
	switch unit {
	case "":
		return fmt.Sprintf("%.2f", v)
	case "%":
		return fmt.Sprintf("%.2f%%", v)
	default:
		return fmt.Sprintf("%.2f %s", v, unit)
	}
}
