// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package eval // import "github.com/hostwatch/hostwatch/internal/eval"

import "time"

// firstRunMargin pads the very first report of an observer so it cannot
// expire while the schedule is still settling.
const firstRunMargin = 5 * time.Minute

// ReportTTL computes how long a health report stays valid. The lifetime must
// cover the gap until the producing observer refreshes the report, plus the
// time the next run itself takes.
//
// On the first run (zero lastRun) the gap is unknown, so the TTL is the poll
// interval padded by a fixed margin, plus the observer's own run interval
// when one is configured. On subsequent runs the observed gap since the last
// run is used directly. Negative inputs are treated as zero.
func ReportTTL(now, lastRun time.Time, runDuration, pollInterval, runInterval time.Duration) time.Duration {
	if runDuration < 0 {
		runDuration = 0
	}
	if pollInterval < 0 {
		pollInterval = 0
	}
	if runInterval < 0 {
		runInterval = 0
	}

	if lastRun.IsZero() {
		return pollInterval + firstRunMargin + runInterval
	}

	elapsed := now.Sub(lastRun)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed + runDuration + pollInterval
}
