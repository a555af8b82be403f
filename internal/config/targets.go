// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package config // import "github.com/hostwatch/hostwatch/internal/config"

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hostwatch/hostwatch/internal/observers"
)

// AppTargetSpec is one monitored workload in the targets file.
type AppTargetSpec struct {
	Name        string `yaml:"name"`
	Process     string `yaml:"process"`
	DumpOnError bool   `yaml:"dump_on_error"`

	CPU                   ThresholdConfig `yaml:"cpu"`
	MemoryMB              ThresholdConfig `yaml:"memory_mb"`
	MemoryPercent         ThresholdConfig `yaml:"memory_percent"`
	PrivateBytesMB        ThresholdConfig `yaml:"private_bytes_mb"`
	Threads               ThresholdConfig `yaml:"threads"`
	Handles               ThresholdConfig `yaml:"handles"`
	HandlesPercent        ThresholdConfig `yaml:"handles_percent"`
	Ports                 ThresholdConfig `yaml:"ports"`
	PortsPercent          ThresholdConfig `yaml:"ports_percent"`
	EphemeralPorts        ThresholdConfig `yaml:"ephemeral_ports"`
	EphemeralPortsPercent ThresholdConfig `yaml:"ephemeral_ports_percent"`
}

type appTargetsFile struct {
	Targets []AppTargetSpec `yaml:"targets"`
}

// LoadAppTargets reads the monitored-workload list. An empty path yields no
// targets, which disables per-process watching without an error.
func LoadAppTargets(path string) ([]observers.AppTarget, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var file appTargetsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}

	targets := make([]observers.AppTarget, 0, len(file.Targets))
	for i, spec := range file.Targets {
		if spec.Name == "" {
			return nil, fmt.Errorf("targets[%d]: name is required", i)
		}
		if spec.Process == "" {
			return nil, fmt.Errorf("targets[%d] (%s): process is required", i, spec.Name)
		}
		for _, tc := range []struct {
			name string
			t    ThresholdConfig
		}{
			{"cpu", spec.CPU},
			{"memory_mb", spec.MemoryMB},
			{"memory_percent", spec.MemoryPercent},
			{"private_bytes_mb", spec.PrivateBytesMB},
			{"threads", spec.Threads},
			{"handles", spec.Handles},
			{"handles_percent", spec.HandlesPercent},
			{"ports", spec.Ports},
			{"ports_percent", spec.PortsPercent},
			{"ephemeral_ports", spec.EphemeralPorts},
			{"ephemeral_ports_percent", spec.EphemeralPortsPercent},
		} {
			if err := tc.t.validateCeiling(fmt.Sprintf("targets[%d] (%s) %s", i, spec.Name, tc.name)); err != nil {
				return nil, err
			}
		}
		targets = append(targets, observers.AppTarget{
			Name:                  spec.Name,
			Process:               spec.Process,
			DumpOnError:           spec.DumpOnError,
			CPU:                   spec.CPU.Eval(),
			MemoryMB:              spec.MemoryMB.Eval(),
			MemoryPercent:         spec.MemoryPercent.Eval(),
			PrivateBytesMB:        spec.PrivateBytesMB.Eval(),
			Threads:               spec.Threads.Eval(),
			Handles:               spec.Handles.Eval(),
			HandlesPercent:        spec.HandlesPercent.Eval(),
			Ports:                 spec.Ports.Eval(),
			PortsPercent:          spec.PortsPercent.Eval(),
			EphemeralPorts:        spec.EphemeralPorts.Eval(),
			EphemeralPortsPercent: spec.EphemeralPortsPercent.Eval(),
		})
	}
	return targets, nil
}
