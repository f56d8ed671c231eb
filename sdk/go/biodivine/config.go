// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package biodivine

import (
	"encoding/json"
	"fmt"
)

// Config is an experiment file: global settings plus a list of
// tasks.
type Config struct {
	Experiment           string
	ConsoleLogLevel      string
	LogFormat            string
	PrintBuildInfo       bool
	PrintEnvironmentInfo bool
	Launcher             LauncherConfig
	Tasks                []TaskConfig
}

// LauncherConfig describes how worker processes are started.
type LauncherConfig struct {
	Worker WorkerConfig
	// Used when a communicator does not name its own mpjHome;
	// if this is also empty, $MPJ_HOME is used.
	MiddlewareHome string
	PollInterval   Duration
	// Directory remote shells change to before starting a
	// worker. Empty means the launcher's working directory.
	WorkDir string
	SSH     SSHConfig
}

// WorkerConfig is the argument contract of the external
// verification engine.
type WorkerConfig struct {
	// Runtime command line prefix, split with shell quoting
	// rules, e.g. "java -cp /opt/biodivine/lib/*".
	Command string
	// printf format taking the memory ceiling in MB. Empty
	// means no memory flag is passed.
	MemoryFlag string
	// Path of the multi-process starter, relative to the
	// middleware home.
	StarterJar  string
	Device      string
	Entrypoints struct {
		Sequential   string
		SharedMemory string
		Distributed  string
	}
}

// SSHConfig selects and configures the remote shell transport.
type SSHConfig struct {
	// "command" runs an ssh client program; "native" uses an
	// in-process SSH client.
	Transport      string
	Command        string
	User           string
	Port           int
	PrivateKeyFile string
	KnownHostsFile string
}

const TaskTypeCTLParameterEstimation = "CTLParameterEstimation"

// Job queue kinds accepted by the verification engine.
const (
	JobQueueBlocking = "blockingQueue"
	JobQueueMerge    = "mergeQueue"
)

// TaskConfig is one entry of an experiment's task list. Keys the
// launcher does not know about are kept in Raw and forwarded to the
// workers.
type TaskConfig struct {
	Type         string
	MaxMemory    int
	Timeout      int
	Communicator CommunicatorConfig
	JobQueue     KindConfig

	Raw map[string]interface{} `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler. Defaults match the
// verification engine's own: 1024 MB, no timeout, no communicator,
// blocking job queue.
func (tc *TaskConfig) UnmarshalJSON(data []byte) error {
	type plain TaskConfig
	parsed := plain{
		Type:         TaskTypeCTLParameterEstimation,
		MaxMemory:    1024,
		Timeout:      -1,
		Communicator: CommunicatorConfig{Type: string(TopologyNone), Workers: 1},
		JobQueue:     KindConfig{Type: JobQueueBlocking},
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &parsed.Raw); err != nil {
		return err
	}
	*tc = TaskConfig(parsed)
	return nil
}

// CommunicatorConfig is given either as a bare kind name
// ("sharedMemory") or as an object with a "type" key.
type CommunicatorConfig struct {
	Type      string
	Workers   int
	MpjHome   string
	Hosts     []string
	PortRange string
	// Bare is true if the communicator was given as a plain
	// string.
	Bare bool `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (cc *CommunicatorConfig) UnmarshalJSON(data []byte) error {
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		*cc = CommunicatorConfig{Type: kind, Workers: 1, Bare: true}
		return nil
	}
	type plain CommunicatorConfig
	parsed := plain{Workers: 1}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("communicator: %w", err)
	}
	*cc = CommunicatorConfig(parsed)
	return nil
}

// KindConfig is a setting given either as a bare kind name or as an
// object with a "type" key, like the job queue.
type KindConfig struct {
	Type string
}

// UnmarshalJSON implements json.Unmarshaler.
func (kc *KindConfig) UnmarshalJSON(data []byte) error {
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		kc.Type = kind
		return nil
	}
	var obj struct{ Type string }
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	kc.Type = obj.Type
	return nil
}
