// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package dump gates and performs diagnostic process captures for breaching
// targets. Every gate fails safe: when in doubt, no dump is produced, and no
// failure here ever propagates into the monitoring loop.
package dump // import "github.com/hostwatch/hostwatch/internal/dump"

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/selfmetrics"
)

const (
	defaultMaxPerWindow = 3
	defaultWindow       = 4 * time.Hour
	defaultDiskCeiling  = 90.0

	// cleanupInterval paces quota-triggered archive sweeps so a persistently
	// breaching target cannot turn every cycle into a directory walk.
	cleanupInterval = 10 * time.Minute

	removeAttempts = 5
)

// Gating reasons recorded on suppressed captures.
const (
	reasonSeverity    = "severity"
	reasonPlatform    = "platform"
	reasonNoDir       = "no_capture_dir"
	reasonUnnamed     = "unnamed_process"
	reasonSelf        = "own_process"
	reasonDiskCeiling = "disk_ceiling"
	reasonQuota       = "quota"
	reasonNotRunning  = "not_running"
	reasonIdentity    = "identity_changed"
	reasonCancelled   = "cancelled"
)

// Config controls capture gating and retention.
type Config struct {
	// Dir is the capture directory. Empty disables captures.
	Dir string
	// Tier selects how much process state each capture includes.
	Tier Tier
	// OnWarning extends capture to Warning-level breaches. Error-level
	// breaches always qualify.
	OnWarning bool
	// MaxPerWindow caps captures per (process, metric) within Window.
	MaxPerWindow int
	Window       time.Duration
	// MaxArchiveAge bounds how long capture files are kept once the quota
	// sweep runs. Zero falls back to Window.
	MaxArchiveAge time.Duration
	// DiskUsedCeiling blocks captures when the target volume is already this
	// full, in percent used.
	DiskUsedCeiling float64
}

// Target identifies the process and metric a capture would be taken for.
type Target struct {
	ProcessID   int32
	ProcessName string
	Metric      classify.Metric
	Severity    health.Severity
}

type rateKey struct {
	process string
	metric  classify.Metric
}

// Coordinator decides whether a breach earns a process dump and performs the
// capture. Safe for concurrent use by independent observer schedules.
type Coordinator struct {
	logger *zap.Logger
	cfg    Config
	writer Writer

	now         func() time.Time
	diskUsage   func(ctx context.Context, path string) (float64, error)
	processName func(ctx context.Context, pid int32) (string, error)
	selfPID     int32

	mu      sync.Mutex
	history map[rateKey][]time.Time

	cleanupPace *rate.Limiter
}

// New builds a Coordinator with platform collectors wired in. Zero config
// fields take conservative defaults.
func New(logger *zap.Logger, cfg Config, writer Writer) *Coordinator {
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = defaultMaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.DiskUsedCeiling <= 0 {
		cfg.DiskUsedCeiling = defaultDiskCeiling
	}
	if cfg.Tier == "" {
		cfg.Tier = TierMini
	}

	return &Coordinator{
		logger:      logger,
		cfg:         cfg,
		writer:      writer,
		now:         time.Now,
		diskUsage:   diskUsedPercent,
		processName: runningProcessName,
		selfPID:     int32(os.Getpid()),
		history:     make(map[rateKey][]time.Time),
		cleanupPace: rate.NewLimiter(rate.Every(cleanupInterval), 1),
	}
}

// ShouldCapture evaluates every gate for the target and returns the first
// reason that blocks capture. A true result means a capture may proceed now;
// it does not reserve quota.
func (c *Coordinator) ShouldCapture(ctx context.Context, t Target) (bool, string) {
	if ctx.Err() != nil {
		return false, reasonCancelled
	}
	if !t.Severity.Breach() {
		return false, reasonSeverity
	}
	if t.Severity == health.SeverityWarning && !c.cfg.OnWarning {
		return false, reasonSeverity
	}
	if !c.writer.Supported() {
		return false, reasonPlatform
	}
	if c.cfg.Dir == "" {
		return false, reasonNoDir
	}
	if t.ProcessName == "" || t.ProcessID <= 0 {
		return false, reasonUnnamed
	}
	if t.ProcessID == c.selfPID {
		return false, reasonSelf
	}

	used, err := c.diskUsage(ctx, c.cfg.Dir)
	if err != nil {
		c.logger.Warn("Cannot verify capture volume usage", zap.String("dir", c.cfg.Dir), zap.Error(err))
		return false, reasonDiskCeiling
	}
	if used >= c.cfg.DiskUsedCeiling {
		return false, reasonDiskCeiling
	}

	if c.capturesInWindow(t) >= c.cfg.MaxPerWindow {
		c.cleanupArchive(ctx)
		return false, reasonQuota
	}

	// The pid may have been recycled since the breach was observed. Confirm
	// it still belongs to the process we think it does before dumping.
	name, err := c.processName(ctx, t.ProcessID)
	if err != nil {
		return false, reasonNotRunning
	}
	if !sameProcessName(name, t.ProcessName) {
		return false, reasonIdentity
	}
	return true, ""
}

// TryCapture runs the gates and, when they pass, writes the capture file.
// Returns whether a dump was produced. Never returns an error: every failure
// is logged and absorbed.
func (c *Coordinator) TryCapture(ctx context.Context, t Target) bool {
	ok, reason := c.ShouldCapture(ctx, t)
	if !ok {
		selfmetrics.DumpsSuppressed.WithLabelValues(reason).Inc()
		c.logger.Debug("Process dump suppressed",
			zap.String("reason", reason),
			zap.String("process", t.ProcessName),
			zap.Int32("pid", t.ProcessID),
			zap.String("metric", string(t.Metric)))
		return false
	}
	return c.capture(ctx, t)
}

func (c *Coordinator) capture(ctx context.Context, t Target) bool {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		c.logger.Warn("Cannot create capture directory", zap.String("dir", c.cfg.Dir), zap.Error(err))
		return false
	}

	path := filepath.Join(c.cfg.Dir, FileName(t.ProcessName, t.Metric, t.ProcessID, c.now()))
	if err := c.writer.Write(ctx, t.ProcessID, c.cfg.Tier, path); err != nil {
		c.logger.Warn("Process dump failed",
			zap.String("path", path),
			zap.Int32("pid", t.ProcessID),
			zap.Error(err))
		c.removePartial(path)
		return false
	}

	c.RecordCapture(t)
	selfmetrics.DumpsTaken.Inc()
	c.logger.Info("Process dump written",
		zap.String("path", path),
		zap.Int32("pid", t.ProcessID),
		zap.String("metric", string(t.Metric)))
	return true
}

// RecordCapture counts one capture against the target's rolling window.
func (c *Coordinator) RecordCapture(t Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := rateKey{process: t.ProcessName, metric: t.Metric}
	c.history[key] = append(c.history[key], c.now())
}

// capturesInWindow prunes expired entries and returns the live count.
func (c *Coordinator) capturesInWindow(t Target) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rateKey{process: t.ProcessName, metric: t.Metric}
	cutoff := c.now().Add(-c.cfg.Window)
	kept := c.history[key][:0]
	for _, ts := range c.history[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(c.history, key)
		return 0
	}
	c.history[key] = kept
	return len(kept)
}

// cleanupArchive deletes aged capture files so an exhausted quota does not
// block captures forever. Best effort and paced.
func (c *Coordinator) cleanupArchive(ctx context.Context) {
	if !c.cleanupPace.Allow() {
		return
	}

	maxAge := c.cfg.MaxArchiveAge
	if maxAge <= 0 {
		maxAge = c.cfg.Window
	}
	cutoff := c.now().Add(-maxAge)

	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		c.logger.Debug("Cannot list capture directory", zap.String("dir", c.cfg.Dir), zap.Error(err))
		return
	}

	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dmp") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.cfg.Dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		c.logger.Info("Removed aged dump files", zap.Int("count", removed), zap.String("dir", c.cfg.Dir))
	}
}

// removePartial deletes a failed capture's output with bounded retries. The
// file may still be held open briefly on some platforms.
func (c *Coordinator) removePartial(path string) {
	for attempt := 0; attempt < removeAttempts; attempt++ {
		err := os.Remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	c.logger.Warn("Could not remove partial dump file", zap.String("path", path))
}

// sameProcessName compares process names ignoring case and a trailing
// Windows executable suffix.
func sameProcessName(a, b string) bool {
	trim := func(s string) string {
		return strings.TrimSuffix(strings.ToLower(s), ".exe")
	}
	return trim(a) == trim(b)
}

func diskUsedPercent(ctx context.Context, path string) (float64, error) {
	st, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return st.UsedPercent, nil
}

func runningProcessName(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.NameWithContext(ctx)
}
