// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package dump // import "github.com/hostwatch/hostwatch/internal/dump"

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned by Write on platforms without a native process
// dump facility.
var ErrUnsupported = errors.New("process dumps are not supported on this platform")

// Tier selects how much process state a capture includes.
type Tier string

const (
	// TierMini captures thread stacks and directly referenced memory.
	TierMini Tier = "mini"
	// TierMiniPlus adds private read/write pages, data segments and handle
	// state to TierMini.
	TierMiniPlus Tier = "mini-plus"
	// TierFull captures the entire address space.
	TierFull Tier = "full"
)

// ParseTier validates a configured tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierMini, TierMiniPlus, TierFull:
		return Tier(s), nil
	case "":
		return TierMini, nil
	default:
		return "", fmt.Errorf("unknown dump tier %q", s)
	}
}

// Writer produces a point-in-time capture of a running process. Supported
// reports whether the current platform can produce captures at all; callers
// gate on it before attempting Write.
type Writer interface {
	Supported() bool
	Write(ctx context.Context, pid int32, tier Tier, path string) error
}
