// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package observers // import "github.com/hostwatch/hostwatch/internal/observers"

import (
	"context"
	"strings"
	"sync"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// procSample is one instantaneous reading of a live process.
type procSample struct {
	CPUPercent   float64
	WorkingSetMB float64
	PrivateMB    float64
	Threads      float64
	Handles      float64
	Ports        float64
	Ephemeral    float64
}

// procReader abstracts live process inspection so observers can be tested
// without real processes.
type procReader interface {
	// Find returns the pids whose executable name matches, case-insensitive,
	// with or without an .exe suffix.
	Find(ctx context.Context, name string) ([]int32, error)
	Name(ctx context.Context, pid int32) (string, error)
	Sample(ctx context.Context, pid int32, ports portCounter) (procSample, error)
	Children(ctx context.Context, pid int32) ([]int32, error)
}

// portCounter counts the distinct local TCP ports a pid holds, total and
// within the ephemeral range. Nil skips port metrics.
type portCounter func(ctx context.Context, pid int32) (total, ephemeral float64, err error)

// gopsutilProcs reads through gopsutil. CPU percentages are computed from the
// delta between consecutive samples, so the same pid must be sampled through
// the same reader; handles are cached per pid for that reason.
type gopsutilProcs struct {
	mu    sync.Mutex
	cache map[int32]*process.Process
}

func newProcReader() *gopsutilProcs {
	return &gopsutilProcs{cache: make(map[int32]*process.Process)}
}

func (g *gopsutilProcs) proc(ctx context.Context, pid int32) (*process.Process, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.cache[pid]; ok {
		return p, nil
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	g.cache[pid] = p
	return p, nil
}

func (g *gopsutilProcs) forget(pid int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, pid)
}

func (g *gopsutilProcs) Find(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var pids []int32
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if matchProcessName(n, name) {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

func (g *gopsutilProcs) Name(ctx context.Context, pid int32) (string, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return "", err
	}
	n, err := p.NameWithContext(ctx)
	if err != nil {
		g.forget(pid)
		return "", err
	}
	return n, nil
}

func (g *gopsutilProcs) Sample(ctx context.Context, pid int32, ports portCounter) (procSample, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return procSample{}, err
	}

	var s procSample

	// Percent with a zero interval measures the window since the previous
	// call on this handle; the first call covers the process lifetime.
	cpu, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		g.forget(pid)
		return procSample{}, err
	}
	s.CPUPercent = cpu

	if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
		s.WorkingSetMB = bytesToMB(mi.RSS)
		s.PrivateMB = bytesToMB(mi.VMS)
	}
	if th, err := p.NumThreadsWithContext(ctx); err == nil {
		s.Threads = float64(th)
	}
	if fds, err := p.NumFDsWithContext(ctx); err == nil {
		s.Handles = float64(fds)
	}
	if ports != nil {
		if total, eph, err := ports(ctx, pid); err == nil {
			s.Ports = total
			s.Ephemeral = eph
		}
	}
	return s, nil
}

func (g *gopsutilProcs) Children(ctx context.Context, pid int32) ([]int32, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return nil, err
	}
	kids, err := p.ChildrenWithContext(ctx)
	if err != nil {
		// gopsutil reports "no children" as an error; treat it as none.
		return nil, nil
	}
	pids := make([]int32, 0, len(kids))
	for _, k := range kids {
		pids = append(pids, k.Pid)
	}
	return pids, nil
}

// pidPortCounter builds a portCounter over the pid's TCP table, counting
// distinct local ports and those inside the ephemeral range.
func pidPortCounter(lo, hi int) portCounter {
	return func(ctx context.Context, pid int32) (float64, float64, error) {
		conns, err := gnet.ConnectionsPidWithContext(ctx, "tcp", pid)
		if err != nil {
			return 0, 0, err
		}
		total, eph := countLocalPorts(conns, lo, hi)
		return total, eph, nil
	}
}

func countLocalPorts(conns []gnet.ConnectionStat, lo, hi int) (total, ephemeral float64) {
	seen := make(map[uint32]struct{}, len(conns))
	for _, c := range conns {
		port := c.Laddr.Port
		if port == 0 {
			continue
		}
		if _, dup := seen[port]; dup {
			continue
		}
		seen[port] = struct{}{}
		total++
		if int(port) >= lo && int(port) <= hi {
			ephemeral++
		}
	}
	return total, ephemeral
}

func matchProcessName(got, want string) bool {
	norm := func(s string) string {
		return strings.TrimSuffix(strings.ToLower(s), ".exe")
	}
	return norm(got) == norm(want)
}
