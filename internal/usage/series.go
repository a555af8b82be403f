// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package usage // import "github.com/hostwatch/hostwatch/internal/usage"

import (
	"math"

	"github.com/hostwatch/hostwatch/internal/classify"
)

// Series accumulates numeric samples for one (entity, metric) pair across a
// monitoring cycle. Samples are cleared at the end of every cycle; the breach
// flag and its code survive clearing so the next cycle can tell a continuing
// breach from a new one.
//
// A Series belongs to the observer that created it and is never shared across
// goroutines, so it carries no locking.
type Series struct {
	EntityID string
	Metric   classify.Metric

	capacity int
	samples  []float64
	next     int

	breached   bool
	breachCode classify.Code
}

// NewSeries creates a series. capacity > 0 bounds the buffer: once full, new
// samples overwrite the oldest. capacity <= 0 keeps every sample of the cycle.
func NewSeries(entityID string, metric classify.Metric, capacity int) *Series {
	s := &Series{EntityID: entityID, Metric: metric, capacity: capacity}
	if capacity > 0 {
		s.samples = make([]float64, 0, capacity)
	}
	return s
}

// AddSample records one observation. NaN and infinite values are discarded so
// a single bad reading cannot poison the running average.
func (s *Series) AddSample(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if s.capacity > 0 && len(s.samples) == s.capacity {
		s.samples[s.next] = v
		s.next = (s.next + 1) % s.capacity
		return
	}
	s.samples = append(s.samples, v)
}

// Average returns the mean of the retained samples, 0 when there are none.
func (s *Series) Average() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.samples {
		sum += v
	}
	return sum / float64(len(s.samples))
}

// Max returns the largest retained sample, 0 when there are none.
func (s *Series) Max() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	m := s.samples[0]
	for _, v := range s.samples[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Count returns how many samples are retained.
func (s *Series) Count() int {
	return len(s.samples)
}

// Samples returns the retained samples in arrival order.
func (s *Series) Samples() []float64 {
	out := make([]float64, 0, len(s.samples))
	if s.capacity > 0 && len(s.samples) == s.capacity {
		out = append(out, s.samples[s.next:]...)
		return append(out, s.samples[:s.next]...)
	}
	return append(out, s.samples...)
}

// IsUnhealthy reports whether the running average has met or exceeded the
// threshold. A threshold of zero or below means "not configured" and never
// breaches.
func (s *Series) IsUnhealthy(threshold float64) bool {
	return threshold > 0 && len(s.samples) > 0 && s.Average() >= threshold
}

// ClearSamples drops the cycle's samples. The breach flag and code persist.
func (s *Series) ClearSamples() {
	s.samples = s.samples[:0]
	s.next = 0
}

// SetBreach marks the series as actively breached under the given code.
func (s *Series) SetBreach(code classify.Code) {
	s.breached = true
	s.breachCode = code
}

// ClearBreach resets the breach flag and forgets the stored code.
func (s *Series) ClearBreach() {
	s.breached = false
	s.breachCode = ""
}

// Breached reports whether the previous evaluation left the series in breach.
func (s *Series) Breached() bool {
	return s.breached
}

// BreachCode returns the code recorded when the breach began, empty when the
// series is healthy.
func (s *Series) BreachCode() classify.Code {
	return s.breachCode
}
