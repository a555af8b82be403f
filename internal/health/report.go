// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package health // import "github.com/hostwatch/hostwatch/internal/health"

import (
	"time"

	"github.com/hostwatch/hostwatch/internal/entity"
)

// Report is one health statement about an entity. Reports are logically
// keyed by (entity, source, property): submitting a report with the same key
// replaces the previous one, which is what makes re-emission of a continuing
// breach idempotent.
type Report struct {
	EntityID   string
	EntityName string
	EntityKind entity.Kind
	NodeName   string

	// Observer is the name of the monitor that produced the report.
	Observer string

	// SourceID is derived from observer and code, Property from entity kind
	// and metric. Together with the entity identity they form the stable
	// report key.
	SourceID string
	Property string

	Metric   string
	Code     string
	Severity Severity
	Value    float64
	Message  string

	// TTL bounds how long the report stays meaningful if the producer stops
	// refreshing it. Zero means the report never expires.
	TTL       time.Duration
	Timestamp time.Time
}

// Key returns the identity under which a store files the report.
func (r Report) Key() string {
	return r.EntityID + "|" + r.SourceID + "|" + r.Property
}

// Expired reports whether the report's lifetime has lapsed at t.
func (r Report) Expired(t time.Time) bool {
	if r.TTL <= 0 || r.Timestamp.IsZero() {
		return false
	}
	return t.After(r.Timestamp.Add(r.TTL))
}
