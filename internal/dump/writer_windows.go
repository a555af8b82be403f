// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package dump // import "github.com/hostwatch/hostwatch/internal/dump"

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// MINIDUMP_TYPE flags understood by dbghelp.
const (
	miniDumpWithDataSegs                   = 0x00000001
	miniDumpWithFullMemory                 = 0x00000002
	miniDumpWithHandleData                 = 0x00000004
	miniDumpWithUnloadedModules            = 0x00000020
	miniDumpWithIndirectlyReferencedMemory = 0x00000040
	miniDumpWithProcessThreadData          = 0x00000100
	miniDumpWithPrivateReadWriteMemory     = 0x00000200
	miniDumpWithFullMemoryInfo             = 0x00000800
	miniDumpWithThreadInfo                 = 0x00001000
)

var (
	dbghelp               = windows.NewLazySystemDLL("dbghelp.dll")
	procMiniDumpWriteDump = dbghelp.NewProc("MiniDumpWriteDump")
)

type platformWriter struct{}

// NewWriter returns the dbghelp-backed capture writer.
func NewWriter() Writer {
	return platformWriter{}
}

func (platformWriter) Supported() bool {
	return true
}

func (platformWriter) Write(ctx context.Context, pid int32, tier Tier, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	handle, err := windows.OpenProcess(
		windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	ret, _, callErr := procMiniDumpWriteDump.Call(
		uintptr(handle),
		uintptr(uint32(pid)),
		f.Fd(),
		uintptr(dumpFlags(tier)),
		0, 0, 0)
	if ret == 0 {
		return fmt.Errorf("MiniDumpWriteDump pid %d: %w", pid, callErr)
	}
	return nil
}

func dumpFlags(tier Tier) uint32 {
	switch tier {
	case TierFull:
		return miniDumpWithFullMemory
	case TierMiniPlus:
		return miniDumpWithPrivateReadWriteMemory | miniDumpWithDataSegs |
			miniDumpWithHandleData | miniDumpWithFullMemoryInfo |
			miniDumpWithThreadInfo | miniDumpWithUnloadedModules
	default:
		return miniDumpWithIndirectlyReferencedMemory | miniDumpWithProcessThreadData
	}
}
