// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package dump // import "github.com/hostwatch/hostwatch/internal/dump"

import "context"

type platformWriter struct{}

// NewWriter returns the capture writer for this platform. Process dumps are
// a Windows facility; elsewhere the writer reports unsupported and the
// coordinator skips capture entirely.
func NewWriter() Writer {
	return platformWriter{}
}

func (platformWriter) Supported() bool {
	return false
}

func (platformWriter) Write(context.Context, int32, Tier, string) error {
	return ErrUnsupported
}
