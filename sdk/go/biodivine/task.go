// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package biodivine

import "time"

// Task is a validated description of one verification run. It is
// built from a TaskConfig and consumed once by a dispatcher.
type Task struct {
	// Name identifies the task in worker arguments and log files.
	Name string
	// Root is the directory where the workers write their results.
	Root string
	// Document is the task's configuration, serialized as YAML,
	// handed verbatim to the workers.
	Document string

	MemoryLimitMB  int
	TimeoutSeconds int
	Topology       Topology
}

// Timeout returns the per-process wall-clock budget, or zero if the
// task has no timeout.
func (t Task) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// WorkerCount returns the number of cooperating workers the task's
// topology asks for.
func (t Task) WorkerCount() int {
	switch topo := t.Topology.(type) {
	case SharedMemory:
		return topo.Workers
	case LocalCluster:
		return topo.Workers
	case RemoteCluster:
		return len(topo.Hosts)
	default:
		return 1
	}
}

// TopologyKind is a string naming a Topology variant. The values
// match the communicator names used in experiment files.
type TopologyKind string

const (
	TopologyNone          = TopologyKind("none")
	TopologySharedMemory  = TopologyKind("sharedMemory")
	TopologyLocalCluster  = TopologyKind("mpjLocal")
	TopologyRemoteCluster = TopologyKind("mpjCluster")
)

// Topology is the shape and placement of a task's worker processes.
// It is one of NoTopology, SharedMemory, LocalCluster or
// RemoteCluster.
type Topology interface {
	Kind() TopologyKind
}

// NoTopology is a single worker without inter-process
// communication.
type NoTopology struct{}

// SharedMemory is a single local process hosting Workers in-process
// partitions.
type SharedMemory struct {
	Workers int
}

// LocalCluster is a single local process that starts Workers ranks
// through the middleware's bundled multi-process starter.
type LocalCluster struct {
	Workers        int
	MiddlewareHome string
}

// RemoteCluster is one process per host, started over a remote
// shell. Hosts are ranked in list order.
type RemoteCluster struct {
	Hosts          []string
	PortRange      string
	MiddlewareHome string
}

func (NoTopology) Kind() TopologyKind    { return TopologyNone }
func (SharedMemory) Kind() TopologyKind  { return TopologySharedMemory }
func (LocalCluster) Kind() TopologyKind  { return TopologyLocalCluster }
func (RemoteCluster) Kind() TopologyKind { return TopologyRemoteCluster }

// RankAssignment is the network address of one rank of a
// RemoteCluster launch.
type RankAssignment struct {
	Rank  int
	Host  string
	PortA int
	PortB int
}
