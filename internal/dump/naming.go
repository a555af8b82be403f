// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package dump // import "github.com/hostwatch/hostwatch/internal/dump"

import (
	"fmt"
	"strings"
	"time"

	"github.com/hostwatch/hostwatch/internal/classify"
)

// fillerWords are dropped from metric labels when building file names. The
// remaining words keep dump names short but still recognizable, e.g.
// "Total Active Ports" and "Active TCP Ports" both reduce to "Ports".
var fillerWords = map[string]struct{}{
	"Total":     {},
	"Active":    {},
	"Allocated": {},
	"TCP":       {},
}

// NormalizeMetric reduces a metric label to a compact token for embedding in
// file names: filler words and parenthesized unit suffixes are dropped and
// the remaining words are concatenated.
func NormalizeMetric(m classify.Metric) string {
	var b strings.Builder
	for _, word := range strings.Fields(string(m)) {
		if strings.HasPrefix(word, "(") {
			continue
		}
		if _, filler := fillerWords[word]; filler {
			continue
		}
		b.WriteString(word)
	}
	return b.String()
}

// FileName builds the capture file name for one process/metric pair. The
// timestamp keeps repeated captures of the same target unique.
func FileName(processName string, m classify.Metric, pid int32, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%s.dmp",
		processName, NormalizeMetric(m), pid, ts.UTC().Format("20060102T150405Z"))
}
