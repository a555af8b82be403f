// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package entity // import "github.com/hostwatch/hostwatch/internal/entity"

// Builder constructs descriptors with the node identity filled in. All
// observers build their descriptors through one Builder so optional fields are
// populated in exactly one place.
type Builder struct {
	nodeName string
}

func NewBuilder(nodeName string) *Builder {
	return &Builder{nodeName: nodeName}
}

// Node describes the logical cluster node.
func (b *Builder) Node() Descriptor {
	return Descriptor{Kind: KindNode, Name: b.nodeName, NodeName: b.nodeName}
}

// Machine describes the underlying host, for metrics that outlive node identity.
func (b *Builder) Machine() Descriptor {
	return Descriptor{Kind: KindMachine, Name: b.nodeName, NodeName: b.nodeName}
}

// Disk describes one mounted volume on this node.
func (b *Builder) Disk(mount string) Descriptor {
	return Descriptor{Kind: KindDisk, Name: mount, NodeName: b.nodeName}
}

// Application describes a deployed application backed by a process.
func (b *Builder) Application(name string, pid int32, process string) Descriptor {
	return Descriptor{
		Kind:        KindApplication,
		Name:        name,
		NodeName:    b.nodeName,
		ProcessID:   pid,
		ProcessName: process,
	}
}

// Service describes a managed service replica backed by a process.
func (b *Builder) Service(name, partitionID, replicaID string, pid int32, process string) Descriptor {
	return Descriptor{
		Kind:        KindService,
		Name:        name,
		NodeName:    b.nodeName,
		ProcessID:   pid,
		ProcessName: process,
		PartitionID: partitionID,
		ReplicaID:   replicaID,
	}
}

// WithContainer returns a copy of d carrying the container identity.
func (d Descriptor) WithContainer(containerID string) Descriptor {
	d.ContainerID = containerID
	return d
}
