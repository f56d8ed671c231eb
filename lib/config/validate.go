// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/google/shlex"
	"github.com/sybila/biodivine/lib/portmap"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
)

// Validate checks the experiment-wide settings. It does not check
// the tasks; see Tasks.
func Validate(cfg *biodivine.Config) error {
	if _, err := ctxlog.ParseLevel(cfg.ConsoleLogLevel); err != nil {
		return biodivine.ConfigErrorf("consoleLogLevel: %s", err)
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return biodivine.ConfigErrorf("unsupported logFormat %q", cfg.LogFormat)
	}
	switch cfg.Launcher.SSH.Transport {
	case "", "command", "native", "local":
	default:
		return biodivine.ConfigErrorf("unknown ssh transport %q", cfg.Launcher.SSH.Transport)
	}
	args, err := shlex.Split(cfg.Launcher.Worker.Command)
	if err != nil {
		return biodivine.ConfigErrorf("launcher.worker.command: %s", err)
	} else if len(args) == 0 {
		return biodivine.ConfigErrorf("launcher.worker.command is empty")
	}
	if cfg.Launcher.PollInterval < 0 {
		return biodivine.ConfigErrorf("launcher.pollInterval must not be negative")
	}
	return nil
}

// Tasks validates cfg and every task in it, and returns the tasks in
// order. A lone task is named "task" and its Root is ""; otherwise
// task i is named "task-<i>" with Root "task-<i>". Roots are
// relative to the experiment directory.
//
// Nothing is returned unless every task is valid.
func Tasks(cfg *biodivine.Config) ([]biodivine.Task, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	var tasks []biodivine.Task
	for i, tc := range cfg.Tasks {
		name, root := "task", ""
		if len(cfg.Tasks) > 1 {
			name = fmt.Sprintf("task-%d", i)
			root = name
		}
		task, err := ValidateTask(cfg, tc)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		task.Name, task.Root = name, root
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ValidateTask converts one task entry into a Task with an empty Name
// and Root.
func ValidateTask(cfg *biodivine.Config, tc biodivine.TaskConfig) (biodivine.Task, error) {
	if tc.Type != biodivine.TaskTypeCTLParameterEstimation {
		return biodivine.Task{}, biodivine.ConfigErrorf("unsupported task type %q", tc.Type)
	}
	if tc.MaxMemory <= 0 {
		return biodivine.Task{}, biodivine.ConfigErrorf("maxMemory must be positive, got %d", tc.MaxMemory)
	}
	switch tc.JobQueue.Type {
	case biodivine.JobQueueBlocking, biodivine.JobQueueMerge:
	default:
		return biodivine.Task{}, biodivine.ConfigErrorf("unsupported job queue %q", tc.JobQueue.Type)
	}
	topology, err := topology(cfg, tc.Communicator)
	if err != nil {
		return biodivine.Task{}, err
	}
	// Raw is nil for tasks built in code; workers still get a map.
	doc := map[string]interface{}{}
	for k, v := range tc.Raw {
		doc[k] = v
	}
	buf, err := yaml.Marshal(doc)
	if err != nil {
		return biodivine.Task{}, fmt.Errorf("serializing task: %w", err)
	}
	return biodivine.Task{
		Document:       string(buf),
		MemoryLimitMB:  tc.MaxMemory,
		TimeoutSeconds: tc.Timeout,
		Topology:       topology,
	}, nil
}

func topology(cfg *biodivine.Config, cc biodivine.CommunicatorConfig) (biodivine.Topology, error) {
	kind := biodivine.TopologyKind(cc.Type)
	switch kind {
	case biodivine.TopologyNone:
		return biodivine.NoTopology{}, nil
	case biodivine.TopologySharedMemory:
		if cc.Workers < 1 {
			return nil, biodivine.ConfigErrorf("%s: workers must be at least 1, got %d", kind, cc.Workers)
		}
		return biodivine.SharedMemory{Workers: cc.Workers}, nil
	case biodivine.TopologyLocalCluster:
		if cc.Workers < 1 {
			return nil, biodivine.ConfigErrorf("%s: workers must be at least 1, got %d", kind, cc.Workers)
		}
		return biodivine.LocalCluster{
			Workers:        cc.Workers,
			MiddlewareHome: middlewareHome(cfg, cc),
		}, nil
	case biodivine.TopologyRemoteCluster:
		if cc.Bare {
			return nil, biodivine.ConfigErrorf("%s communicator needs hosts and portRange", kind)
		}
		if len(cc.Hosts) == 0 {
			return nil, biodivine.ConfigErrorf("%s: hosts must not be empty", kind)
		}
		if cc.PortRange == "" {
			return nil, biodivine.ConfigErrorf("%s: portRange is required", kind)
		}
		if _, err := portmap.Allocate(cc.Hosts, cc.PortRange); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return biodivine.RemoteCluster{
			Hosts:          append([]string(nil), cc.Hosts...),
			PortRange:      cc.PortRange,
			MiddlewareHome: middlewareHome(cfg, cc),
		}, nil
	default:
		return nil, biodivine.ConfigErrorf("unsupported communicator %q", cc.Type)
	}
}

func middlewareHome(cfg *biodivine.Config, cc biodivine.CommunicatorConfig) string {
	if cc.MpjHome != "" {
		return cc.MpjHome
	}
	if cfg.Launcher.MiddlewareHome != "" {
		return cfg.Launcher.MiddlewareHome
	}
	return os.Getenv("MPJ_HOME")
}
