// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package entity // import "github.com/hostwatch/hostwatch/internal/entity"

import (
	"errors"
	"fmt"
)

// Kind identifies what class of thing a series of samples describes.
type Kind string

const (
	KindApplication Kind = "application"
	KindService     Kind = "service"
	KindNode        Kind = "node"
	KindMachine     Kind = "machine"
	KindDisk        Kind = "disk"
)

var errInvalidKind = errors.New("invalid entity kind")

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindApplication, KindService, KindNode, KindMachine, KindDisk:
		return true
	default:
		return false
	}
}

// AppScoped reports whether k names a deployed workload rather than the host.
func (k Kind) AppScoped() bool {
	return k == KindApplication || k == KindService
}

// NodeScoped reports whether k names the host or one of its volumes.
func (k Kind) NodeScoped() bool {
	return k == KindNode || k == KindMachine || k == KindDisk
}

func (k Kind) String() string {
	return string(k)
}

// Descriptor carries everything downstream consumers may need to attribute a
// sample series: reports, telemetry payloads and dump file names all draw from
// it. Optional fields are zero when they do not apply to the kind.
type Descriptor struct {
	Kind     Kind
	Name     string // workload name, node name, or mount point
	NodeName string

	// Process fields, set for app-scoped kinds when a live process backs the entity.
	ProcessID   int32
	ProcessName string

	// Placement fields, set when the workload is a managed service replica.
	PartitionID string
	ReplicaID   string
	ContainerID string
}

// ID returns the stable identity used to key breach state and sample series.
// Process ids are deliberately excluded so a restarted process continues the
// same series instead of stranding the old one mid-breach.
func (d Descriptor) ID() string {
	return string(d.Kind) + ":" + d.Name
}

// Validate rejects descriptors that would mis-attribute a report.
func (d Descriptor) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", errInvalidKind, string(d.Kind))
	}
	if d.Name == "" {
		return fmt.Errorf("entity %s: name is required", d.Kind)
	}
	if d.NodeName == "" {
		return fmt.Errorf("entity %s/%s: node name is required", d.Kind, d.Name)
	}
	if d.Kind.NodeScoped() && d.ProcessID != 0 {
		return fmt.Errorf("entity %s/%s: process id is not valid for node-scoped kinds", d.Kind, d.Name)
	}
	return nil
}
