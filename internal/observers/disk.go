// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package observers // import "github.com/hostwatch/hostwatch/internal/observers"

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/observer"
	"github.com/hostwatch/hostwatch/internal/usage"
)

const diskObserverName = "DiskObserver"

// FolderTarget sizes one directory tree against its own thresholds.
type FolderTarget struct {
	Path   string
	SizeMB eval.Thresholds
}

// DiskConfig carries the volume thresholds. Mounts restricts watching to the
// listed mount points; empty watches every physical partition.
type DiskConfig struct {
	Enabled bool
	Mounts  []string

	SpacePercent eval.Thresholds
	SpaceUsedMB  eval.Thresholds
	QueueLength  eval.Thresholds

	// AvailableMB breaches downward: the volume is unhealthy when free space
	// falls to or below the floor.
	AvailableMB FloorThresholds

	Folders []FolderTarget
}

// DiskObserver watches mounted volumes: space consumed, space left, queue
// depth and the size of configured folders.
type DiskObserver struct {
	logger *zap.Logger
	eng    Engine
	build  *entity.Builder
	cfg    DiskConfig
	series *seriesTable

	partitions func(ctx context.Context) ([]disk.PartitionStat, error)
	diskUsage  func(ctx context.Context, path string) (*disk.UsageStat, error)
	ioCounters func(ctx context.Context) (map[string]disk.IOCountersStat, error)
	folderSize func(ctx context.Context, path string) (float64, error)
}

func NewDiskObserver(logger *zap.Logger, eng Engine, build *entity.Builder, cfg DiskConfig) *DiskObserver {
	return &DiskObserver{
		logger: logger,
		eng:    eng,
		build:  build,
		cfg:    cfg,
		series: newSeriesTable(),
		partitions: func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, false)
		},
		diskUsage: disk.UsageWithContext,
		ioCounters: func(ctx context.Context) (map[string]disk.IOCountersStat, error) {
			return disk.IOCountersWithContext(ctx)
		},
		folderSize: folderSizeMB,
	}
}

func (o *DiskObserver) Name() string  { return diskObserverName }
func (o *DiskObserver) Enabled() bool { return o.cfg.Enabled }

func (o *DiskObserver) Observe(ctx context.Context, rc observer.RunContext) error {
	var errs error

	mounts, devices, err := o.resolveMounts(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	var queue map[string]disk.IOCountersStat
	if o.cfg.QueueLength.Configured() {
		queue, err = o.ioCounters(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("io counters: %w", err))
		}
	}

	for _, mount := range mounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.observeMount(ctx, rc, mount, devices[mount], queue, &errs); err != nil {
			return err
		}
	}

	for _, folder := range o.cfg.Folders {
		if err := o.observeFolder(ctx, rc, folder, &errs); err != nil {
			return err
		}
	}
	return errs
}

// resolveMounts returns the mount points to watch and their backing device
// names for queue depth lookup.
func (o *DiskObserver) resolveMounts(ctx context.Context) ([]string, map[string]string, error) {
	parts, err := o.partitions(ctx)
	if err != nil {
		if len(o.cfg.Mounts) == 0 {
			return nil, nil, fmt.Errorf("list partitions: %w", err)
		}
		// Explicit mounts can still be usage-checked without the table.
		return o.cfg.Mounts, map[string]string{}, fmt.Errorf("list partitions: %w", err)
	}

	devices := make(map[string]string, len(parts))
	for _, p := range parts {
		devices[p.Mountpoint] = path.Base(p.Device)
	}

	if len(o.cfg.Mounts) > 0 {
		return o.cfg.Mounts, devices, nil
	}

	seen := make(map[string]bool, len(parts))
	mounts := make([]string, 0, len(parts))
	for _, p := range parts {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true
		mounts = append(mounts, p.Mountpoint)
	}
	return mounts, devices, nil
}

func (o *DiskObserver) observeMount(ctx context.Context, rc observer.RunContext, mount, device string, queue map[string]disk.IOCountersStat, errs *error) error {
	vol := o.build.Disk(mount)

	u, err := o.diskUsage(ctx, mount)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("usage %s: %w", mount, err))
	} else {
		sPct := o.series.get(vol.ID(), classify.MetricDiskSpaceUsagePercent)
		sPct.AddSample(u.UsedPercent)
		if err := o.process(ctx, rc, vol, sPct, o.cfg.SpacePercent); err != nil {
			return err
		}

		sMB := o.series.get(vol.ID(), classify.MetricDiskSpaceUsageMB)
		sMB.AddSample(bytesToMB(u.Used))
		if err := o.process(ctx, rc, vol, sMB, o.cfg.SpaceUsedMB); err != nil {
			return err
		}

		if o.cfg.AvailableMB.Configured() {
			dec := floorDecision(classify.MetricDiskAvailableMB, vol.Kind, bytesToMB(u.Free), o.cfg.AvailableMB)
			err := o.eng.ProcessDecision(ctx, rc, observer.DecisionInput{
				Entity:   vol,
				Metric:   classify.MetricDiskAvailableMB,
				Decision: dec,
				Observer: o.Name(),
			})
			if err != nil {
				return err
			}
		}
	}

	if o.cfg.QueueLength.Configured() && queue != nil {
		if counters, ok := queue[device]; ok {
			s := o.series.get(vol.ID(), classify.MetricDiskQueueLength)
			s.AddSample(float64(counters.IopsInProgress))
			if err := o.process(ctx, rc, vol, s, o.cfg.QueueLength); err != nil {
				return err
			}
		} else if device != "" {
			o.logger.Debug("No io counters for device", zap.String("device", device), zap.String("mount", mount))
		}
	}
	return nil
}

func (o *DiskObserver) observeFolder(ctx context.Context, rc observer.RunContext, folder FolderTarget, errs *error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sizeMB, err := o.folderSize(ctx, folder.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		*errs = multierr.Append(*errs, fmt.Errorf("folder size %s: %w", folder.Path, err))
		return nil
	}

	d := o.build.Disk(folder.Path)
	s := o.series.get(d.ID(), classify.MetricFolderSizeMB)
	s.AddSample(sizeMB)
	return o.process(ctx, rc, d, s, folder.SizeMB)
}

func (o *DiskObserver) process(ctx context.Context, rc observer.RunContext, d entity.Descriptor, s *usage.Series, t eval.Thresholds) error {
	return o.eng.ProcessSeries(ctx, rc, observer.SeriesInput{
		Series:     s,
		Entity:     d,
		Thresholds: t,
		Observer:   o.Name(),
	})
}

// folderSizeMB walks the tree summing regular file sizes. Unreadable entries
// are skipped so one permission hole does not void the measurement.
func folderSizeMB(ctx context.Context, root string) (float64, error) {
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return float64(total) / mib, nil
}
