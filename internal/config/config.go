// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads, defaults and validates the watchdog configuration
// from a yaml file and HOSTWATCH_* environment variables.
package config // import "github.com/hostwatch/hostwatch/internal/config"

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/hostwatch/hostwatch/internal/dump"
	"github.com/hostwatch/hostwatch/internal/eval"
	"github.com/hostwatch/hostwatch/internal/observers"
)

// Config is the whole watchdog configuration.
type Config struct {
	// NodeName attributes every report; defaults to the hostname.
	NodeName string `mapstructure:"node_name"`

	// PollInterval is the default gap between observer runs. RunInterval on a
	// section overrides it per observer.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// RunTimeout bounds a single observer run. Zero means unbounded.
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// Jitter staggers observer start so co-located watchdogs do not sample in
	// lockstep.
	Jitter time.Duration `mapstructure:"jitter"`

	// CSVDataDir enables per-entity csv data files when set.
	CSVDataDir string `mapstructure:"csv_data_dir"`

	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Dump      DumpSection     `mapstructure:"dump"`

	Node         NodeSection `mapstructure:"node"`
	Disk         DiskSection `mapstructure:"disk"`
	Apps         AppsSection `mapstructure:"apps"`
	Certificates CertSection `mapstructure:"certificates"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`

	// EnableTracing mirrors health transitions and raw usage into structured
	// trace events on the logger.
	EnableTracing bool `mapstructure:"enable_tracing"`
}

type TelemetryConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	QueueSize int  `mapstructure:"queue_size"`
}

type MetricsConfig struct {
	// Addr serves the watchdog's own Prometheus metrics. Empty disables the
	// listener.
	Addr string `mapstructure:"addr"`
}

type DumpSection struct {
	Dir            string        `mapstructure:"dir"`
	Tier           string        `mapstructure:"tier"`
	OnWarning      bool          `mapstructure:"on_warning"`
	MaxPerWindow   int           `mapstructure:"max_per_window"`
	Window         time.Duration `mapstructure:"window"`
	MaxArchiveAge  time.Duration `mapstructure:"max_archive_age"`
	DiskCeilingPct float64       `mapstructure:"disk_ceiling_percent"`
}

// ThresholdConfig is one warning/error pair. Zero levels are not configured.
type ThresholdConfig struct {
	Warning float64 `mapstructure:"warning" yaml:"warning"`
	Error   float64 `mapstructure:"error" yaml:"error"`
}

// Eval converts to the engine's upper-bound thresholds.
func (t ThresholdConfig) Eval() eval.Thresholds {
	return eval.Thresholds{Warning: t.Warning, Error: t.Error}
}

// Floor converts to lower-bound thresholds for scarcity metrics.
func (t ThresholdConfig) Floor() observers.FloorThresholds {
	return observers.FloorThresholds{Warning: t.Warning, Error: t.Error}
}

// validateCeiling checks an upper-bound pair: the warning level must sit
// below the error level when both are set.
func (t ThresholdConfig) validateCeiling(name string) error {
	if t.Warning < 0 || t.Error < 0 {
		return fmt.Errorf("%s: thresholds must not be negative", name)
	}
	if t.Warning > 0 && t.Error > 0 && t.Warning >= t.Error {
		return fmt.Errorf("%s: warning threshold %v must be below error threshold %v", name, t.Warning, t.Error)
	}
	return nil
}

// validateFloor checks a lower-bound pair: warning fires first, so its floor
// must sit above the error floor when both are set.
func (t ThresholdConfig) validateFloor(name string) error {
	if t.Warning < 0 || t.Error < 0 {
		return fmt.Errorf("%s: thresholds must not be negative", name)
	}
	if t.Warning > 0 && t.Error > 0 && t.Warning <= t.Error {
		return fmt.Errorf("%s: warning floor %v must be above error floor %v", name, t.Warning, t.Error)
	}
	return nil
}

type NodeSection struct {
	Enabled     bool          `mapstructure:"enabled"`
	RunInterval time.Duration `mapstructure:"run_interval"`
	SampleCount int           `mapstructure:"sample_count"`

	CPU                   ThresholdConfig `mapstructure:"cpu"`
	MemoryPercent         ThresholdConfig `mapstructure:"memory_percent"`
	MemoryMB              ThresholdConfig `mapstructure:"memory_mb"`
	ActivePorts           ThresholdConfig `mapstructure:"active_ports"`
	ActivePortsPercent    ThresholdConfig `mapstructure:"active_ports_percent"`
	EphemeralPorts        ThresholdConfig `mapstructure:"ephemeral_ports"`
	EphemeralPortsPercent ThresholdConfig `mapstructure:"ephemeral_ports_percent"`
	Handles               ThresholdConfig `mapstructure:"handles"`
	HandlesPercent        ThresholdConfig `mapstructure:"handles_percent"`
	FirewallRules         ThresholdConfig `mapstructure:"firewall_rules"`
}

// Observer converts the section into the node observer's config.
func (s NodeSection) Observer() observers.NodeConfig {
	return observers.NodeConfig{
		Enabled:               s.Enabled,
		SampleCount:           s.SampleCount,
		CPU:                   s.CPU.Eval(),
		MemoryPercent:         s.MemoryPercent.Eval(),
		MemoryMB:              s.MemoryMB.Eval(),
		ActivePorts:           s.ActivePorts.Eval(),
		ActivePortsPercent:    s.ActivePortsPercent.Eval(),
		EphemeralPorts:        s.EphemeralPorts.Eval(),
		EphemeralPortsPercent: s.EphemeralPortsPercent.Eval(),
		Handles:               s.Handles.Eval(),
		HandlesPercent:        s.HandlesPercent.Eval(),
		FirewallRules:         s.FirewallRules.Eval(),
	}
}

type FolderSection struct {
	Path   string          `mapstructure:"path"`
	SizeMB ThresholdConfig `mapstructure:"size_mb"`
}

type DiskSection struct {
	Enabled     bool          `mapstructure:"enabled"`
	RunInterval time.Duration `mapstructure:"run_interval"`
	Mounts      []string      `mapstructure:"mounts"`

	SpacePercent ThresholdConfig `mapstructure:"space_percent"`
	SpaceUsedMB  ThresholdConfig `mapstructure:"space_used_mb"`
	AvailableMB  ThresholdConfig `mapstructure:"available_mb"`
	QueueLength  ThresholdConfig `mapstructure:"queue_length"`

	Folders []FolderSection `mapstructure:"folders"`
}

func (s DiskSection) Observer() observers.DiskConfig {
	cfg := observers.DiskConfig{
		Enabled:      s.Enabled,
		Mounts:       s.Mounts,
		SpacePercent: s.SpacePercent.Eval(),
		SpaceUsedMB:  s.SpaceUsedMB.Eval(),
		AvailableMB:  s.AvailableMB.Floor(),
		QueueLength:  s.QueueLength.Eval(),
	}
	for _, f := range s.Folders {
		cfg.Folders = append(cfg.Folders, observers.FolderTarget{Path: f.Path, SizeMB: f.SizeMB.Eval()})
	}
	return cfg
}

type AppsSection struct {
	Enabled     bool          `mapstructure:"enabled"`
	RunInterval time.Duration `mapstructure:"run_interval"`
	SampleCount int           `mapstructure:"sample_count"`
	SampleDelay time.Duration `mapstructure:"sample_delay"`
	MaxChildren int           `mapstructure:"max_children"`

	// TargetsFile points at the yaml file listing monitored workloads, kept
	// separate so deployment tooling can rewrite targets without touching the
	// watchdog's own settings.
	TargetsFile string `mapstructure:"targets_file"`
}

// Observer converts the section, attaching the targets loaded from the
// targets file.
func (s AppsSection) Observer(targets []observers.AppTarget) observers.AppConfig {
	return observers.AppConfig{
		Enabled:     s.Enabled,
		SampleCount: s.SampleCount,
		SampleDelay: s.SampleDelay,
		MaxChildren: s.MaxChildren,
		Targets:     targets,
	}
}

type CertSection struct {
	Enabled     bool            `mapstructure:"enabled"`
	RunInterval time.Duration   `mapstructure:"run_interval"`
	Paths       []string        `mapstructure:"paths"`
	ExpiryDays  ThresholdConfig `mapstructure:"expiry_days"`
}

func (s CertSection) Observer() observers.CertConfig {
	return observers.CertConfig{
		Enabled:    s.Enabled,
		Paths:      s.Paths,
		ExpiryDays: s.ExpiryDays.Floor(),
	}
}

// DumpConfig converts the dump section, parsing the tier. Call Validate
// first; an invalid tier falls back to the default here.
func (c *Config) DumpConfig() dump.Config {
	tier, err := dump.ParseTier(c.Dump.Tier)
	if err != nil {
		tier = dump.TierMini
	}
	return dump.Config{
		Dir:             c.Dump.Dir,
		Tier:            tier,
		OnWarning:       c.Dump.OnWarning,
		MaxPerWindow:    c.Dump.MaxPerWindow,
		Window:          c.Dump.Window,
		MaxArchiveAge:   c.Dump.MaxArchiveAge,
		DiskUsedCeiling: c.Dump.DiskCeilingPct,
	}
}

// Load reads configuration from the given file (or the default search paths
// when empty) and the environment, then defaults, normalizes and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hostwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hostwatch/")
	}

	v.SetEnvPrefix("HOSTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve node name: %w", err)
		}
		cfg.NodeName = host
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("poll_interval", "60s")
	v.SetDefault("run_timeout", "10m")
	v.SetDefault("jitter", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")
	v.SetDefault("logging.enable_tracing", false)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.queue_size", 512)

	v.SetDefault("metrics.addr", "127.0.0.1:9600")

	v.SetDefault("dump.tier", "mini")
	v.SetDefault("dump.max_per_window", 3)
	v.SetDefault("dump.window", "4h")
	v.SetDefault("dump.disk_ceiling_percent", 90)

	v.SetDefault("node.enabled", true)
	v.SetDefault("node.sample_count", 3)
	v.SetDefault("node.cpu.warning", 85)
	v.SetDefault("node.cpu.error", 95)
	v.SetDefault("node.memory_percent.warning", 85)
	v.SetDefault("node.memory_percent.error", 95)

	v.SetDefault("disk.enabled", true)
	v.SetDefault("disk.space_percent.warning", 85)
	v.SetDefault("disk.space_percent.error", 95)

	v.SetDefault("apps.enabled", true)
	v.SetDefault("apps.sample_count", 3)
	v.SetDefault("apps.sample_delay", "500ms")
	v.SetDefault("apps.max_children", 10)

	v.SetDefault("certificates.enabled", true)
	v.SetDefault("certificates.expiry_days.warning", 42)
	v.SetDefault("certificates.expiry_days.error", 7)
}

// Validate rejects configurations that could misfire: inverted threshold
// pairs, negative windows, unknown dump tiers.
func (c *Config) Validate() error {
	if c.NodeName == "" {
		return fmt.Errorf("node_name is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must not be negative")
	}
	if c.Jitter < 0 {
		return fmt.Errorf("jitter must not be negative")
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Encoding != "json" && c.Logging.Encoding != "console" {
		return fmt.Errorf("logging.encoding must be json or console, got %q", c.Logging.Encoding)
	}

	if c.Telemetry.QueueSize < 0 {
		return fmt.Errorf("telemetry.queue_size must not be negative")
	}

	if _, err := dump.ParseTier(c.Dump.Tier); err != nil {
		return fmt.Errorf("dump.tier: %w", err)
	}
	if c.Dump.MaxPerWindow < 0 {
		return fmt.Errorf("dump.max_per_window must not be negative")
	}
	if c.Dump.Window < 0 || c.Dump.MaxArchiveAge < 0 {
		return fmt.Errorf("dump windows must not be negative")
	}
	if c.Dump.DiskCeilingPct < 0 || c.Dump.DiskCeilingPct > 100 {
		return fmt.Errorf("dump.disk_ceiling_percent must be within 0..100")
	}

	for _, iv := range []struct {
		name string
		d    time.Duration
	}{
		{"node.run_interval", c.Node.RunInterval},
		{"disk.run_interval", c.Disk.RunInterval},
		{"apps.run_interval", c.Apps.RunInterval},
		{"certificates.run_interval", c.Certificates.RunInterval},
		{"apps.sample_delay", c.Apps.SampleDelay},
	} {
		if iv.d < 0 {
			return fmt.Errorf("%s must not be negative", iv.name)
		}
	}

	ceilings := []struct {
		name string
		t    ThresholdConfig
	}{
		{"node.cpu", c.Node.CPU},
		{"node.memory_percent", c.Node.MemoryPercent},
		{"node.memory_mb", c.Node.MemoryMB},
		{"node.active_ports", c.Node.ActivePorts},
		{"node.active_ports_percent", c.Node.ActivePortsPercent},
		{"node.ephemeral_ports", c.Node.EphemeralPorts},
		{"node.ephemeral_ports_percent", c.Node.EphemeralPortsPercent},
		{"node.handles", c.Node.Handles},
		{"node.handles_percent", c.Node.HandlesPercent},
		{"node.firewall_rules", c.Node.FirewallRules},
		{"disk.space_percent", c.Disk.SpacePercent},
		{"disk.space_used_mb", c.Disk.SpaceUsedMB},
		{"disk.queue_length", c.Disk.QueueLength},
	}
	for _, tc := range ceilings {
		if err := tc.t.validateCeiling(tc.name); err != nil {
			return err
		}
	}
	for i, f := range c.Disk.Folders {
		if f.Path == "" {
			return fmt.Errorf("disk.folders[%d]: path is required", i)
		}
		if err := f.SizeMB.validateCeiling(fmt.Sprintf("disk.folders[%d].size_mb", i)); err != nil {
			return err
		}
	}

	if err := c.Disk.AvailableMB.validateFloor("disk.available_mb"); err != nil {
		return err
	}
	if err := c.Certificates.ExpiryDays.validateFloor("certificates.expiry_days"); err != nil {
		return err
	}
	return nil
}
