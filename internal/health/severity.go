// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package health // import "github.com/hostwatch/hostwatch/internal/health"

// Severity is the health state attached to a report.
type Severity string

const (
	SeverityOk      Severity = "Ok"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// Rank orders severities for comparisons. Unknown values rank below Ok so a
// corrupted state never masks a real breach.
func (s Severity) Rank() int {
	switch s {
	case SeverityOk:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	default:
		return -1
	}
}

// WorseThan reports whether s is a more severe state than o.
func (s Severity) WorseThan(o Severity) bool {
	return s.Rank() > o.Rank()
}

// Breach reports whether s represents a threshold breach.
func (s Severity) Breach() bool {
	return s == SeverityWarning || s == SeverityError
}

func (s Severity) String() string {
	return string(s)
}
