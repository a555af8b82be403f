// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package eval // import "github.com/hostwatch/hostwatch/internal/eval"

import (
	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/usage"
)

// Thresholds holds the configured warning and error levels for one metric.
// A zero value means the level is not configured and never breaches.
type Thresholds struct {
	Warning float64
	Error   float64
}

// Configured reports whether at least one level is set.
func (t Thresholds) Configured() bool {
	return t.Warning > 0 || t.Error > 0
}

// Decision is the outcome of evaluating one series against its thresholds.
type Decision struct {
	Severity health.Severity

	// Threshold is the level that was crossed, zero when healthy.
	Threshold float64

	// Value is the running average the decision was made on.
	Value float64

	// Code is the classification for the (metric, kind, severity)
	// combination, with the generic fallback applied when the combination
	// has no assigned code.
	Code classify.Code
}

// Evaluate compares the series average against the thresholds. Error is
// tested before Warning so a value crossing both yields a single Error
// decision. Comparisons are inclusive: average >= threshold breaches.
//
// Evaluate has no side effects; it never mutates the series or any shared
// state, so concurrent calls are safe.
func Evaluate(s *usage.Series, t Thresholds, kind entity.Kind) Decision {
	dec := Decision{Severity: health.SeverityOk, Value: s.Average()}

	switch {
	case s.IsUnhealthy(t.Error):
		dec.Severity = health.SeverityError
		dec.Threshold = t.Error
	case s.IsUnhealthy(t.Warning):
		dec.Severity = health.SeverityWarning
		dec.Threshold = t.Warning
	}

	// Some metrics are informational by contract and cap at Warning no
	// matter which threshold was crossed.
	if dec.Severity == health.SeverityError && classify.WarningOnly(s.Metric) {
		dec.Severity = health.SeverityWarning
	}

	dec.Code = ResolveCode(s.Metric, kind, dec.Severity)
	return dec
}

// ResolveCode classifies the combination, falling back to the generic code
// when no table entry exists. Observers that build decisions directly (for
// metrics that breach downward, like certificate expiry) use it to stay on
// the same code table.
func ResolveCode(m classify.Metric, kind entity.Kind, sev health.Severity) classify.Code {
	if code, ok := classify.Classify(m, kind, sev); ok {
		return code
	}
	return classify.Fallback(sev)
}
