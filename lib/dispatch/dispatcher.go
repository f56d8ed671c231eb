// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package dispatch turns a task into worker process launches
// according to its topology, and aggregates their outcomes.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/lib/portmap"
	"github.com/sybila/biodivine/lib/supervisor"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
)

// A Dispatcher runs tasks. Its exported fields must not be changed
// after the first call to Dispatch. A Dispatcher may run several
// tasks concurrently.
type Dispatcher struct {
	Worker          biodivine.WorkerConfig
	ConsoleLogLevel string

	// Transport for RemoteCluster ranks. Nil means an ssh client
	// program with default options.
	Transport    supervisor.Transport
	PollInterval time.Duration
	// Directory remote shells change to. Empty means the
	// current working directory.
	WorkDir string

	// Destination for worker stdout. Nil means os.Stdout.
	Stdout io.Writer
	// Metrics are registered here. Nil means a private registry.
	Registry *prometheus.Registry

	setupOnce sync.Once
	stdout    io.Writer
	metrics   *metrics
}

// Result is the final state of a dispatched task.
type Result struct {
	Task     string
	State    biodivine.TaskState
	Outcome  biodivine.Outcome
	Ranks    []RankResult
	// Rank whose failure cancelled the other ranks of a cluster
	// task, or -1.
	CancelledBy int
	Started     time.Time
	Finished    time.Time
}

// RankResult is the outcome of one worker process. Local
// topologies have a single RankResult with Rank 0 and no Host.
type RankResult struct {
	Rank     int
	Host     string
	PortA    int
	PortB    int
	ExitCode int
	Outcome  biodivine.Outcome
	Started  time.Time
	Finished time.Time
}

// New returns a Dispatcher configured from an experiment's
// settings.
func New(cfg *biodivine.Config, stdout io.Writer, reg *prometheus.Registry, logger logrus.FieldLogger) (*Dispatcher, error) {
	transport, err := supervisor.NewTransport(cfg.Launcher.SSH, logger)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		Worker:          cfg.Launcher.Worker,
		ConsoleLogLevel: cfg.ConsoleLogLevel,
		Transport:       transport,
		PollInterval:    cfg.Launcher.PollInterval.Duration(),
		WorkDir:         cfg.Launcher.WorkDir,
		Stdout:          stdout,
		Registry:        reg,
	}, nil
}

func (disp *Dispatcher) setup() {
	disp.stdout = disp.Stdout
	if disp.stdout == nil {
		disp.stdout = os.Stdout
	}
	disp.stdout = &lockedWriter{w: disp.stdout}
	if disp.Transport == nil {
		disp.Transport = &supervisor.CommandTransport{}
	}
	reg := disp.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	disp.metrics = newMetrics(reg)
}

// Dispatch runs task to completion.
//
// The returned error is non-nil only if the task cannot be launched
// as configured (the error wraps biodivine.ErrConfiguration). In
// that case no process has been started. Every failure after that
// point is reported in the Result's Outcome.
func (disp *Dispatcher) Dispatch(ctx context.Context, task biodivine.Task) (*Result, error) {
	disp.setupOnce.Do(disp.setup)
	if task.Topology == nil {
		task.Topology = biodivine.NoTopology{}
	}
	if task.Name == "" {
		task.Name = "task"
	}
	logger := ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"Task":     task.Name,
		"Topology": task.Topology.Kind(),
	})
	ctx = ctxlog.Context(ctx, logger)

	res := &Result{Task: task.Name, State: biodivine.TaskStatePending, CancelledBy: -1}
	st := stateTracker{logger: logger, state: &res.State}

	if task.Root == "" {
		task.Root = "."
	}
	root, err := filepath.Abs(task.Root)
	if err != nil {
		return nil, biodivine.ConfigErrorf("task root %q: %s", task.Root, err)
	}
	task.Root = root
	if task.MemoryLimitMB <= 0 {
		return nil, biodivine.ConfigErrorf("memory limit must be positive, got %d", task.MemoryLimitMB)
	}
	if _, err := disp.runtime(); err != nil {
		return nil, err
	}

	var run func() ([]RankResult, int)
	switch topo := task.Topology.(type) {
	case biodivine.NoTopology, biodivine.SharedMemory:
		if sm, ok := topo.(biodivine.SharedMemory); ok && sm.Workers < 1 {
			return nil, biodivine.ConfigErrorf("workers must be at least 1, got %d", sm.Workers)
		}
		args, err := disp.localCommand(task)
		if err != nil {
			return nil, err
		}
		run = func() ([]RankResult, int) {
			return []RankResult{disp.runLocal(ctx, task, args, nil)}, -1
		}
	case biodivine.LocalCluster:
		if topo.Workers < 1 {
			return nil, biodivine.ConfigErrorf("workers must be at least 1, got %d", topo.Workers)
		}
		home, err := checkMiddlewareHome(topo.MiddlewareHome)
		if err != nil {
			return nil, err
		}
		args, err := disp.localClusterCommand(task, topo, home)
		if err != nil {
			return nil, err
		}
		run = func() ([]RankResult, int) {
			return []RankResult{disp.runLocal(ctx, task, args, middlewareEnv(home))}, -1
		}
	case biodivine.RemoteCluster:
		home, err := checkMiddlewareHome(topo.MiddlewareHome)
		if err != nil {
			return nil, err
		}
		ranks, err := portmap.Allocate(topo.Hosts, topo.PortRange)
		if err != nil {
			return nil, err
		}
		run = func() ([]RankResult, int) {
			return disp.runCluster(ctx, task, ranks, home)
		}
	default:
		return nil, biodivine.ConfigErrorf("unsupported topology %T", task.Topology)
	}

	disp.metrics.tasks.WithLabelValues(string(task.Topology.Kind())).Inc()
	st.to(biodivine.TaskStateDispatched)
	res.Started = time.Now()
	logger.WithFields(logrus.Fields{
		"Workers":     task.WorkerCount(),
		"MemoryLimit": humanize.IBytes(uint64(task.MemoryLimitMB) << 20),
		"Timeout":     task.Timeout(),
	}).Info("dispatching task")

	if err := os.MkdirAll(task.Root, 0777); err != nil {
		logger.WithError(err).Error("cannot create task root")
		res.Outcome = biodivine.Outcome{Reason: biodivine.ReasonLaunchError, ExitCode: -1, Message: err.Error()}
		st.to(biodivine.TaskStateFailed)
		return disp.finish(logger, res), nil
	}

	st.to(biodivine.TaskStateRunning)
	res.Ranks, res.CancelledBy = run()
	res.Outcome = aggregate(res.Ranks, res.CancelledBy)
	if res.Outcome.Failed() {
		st.to(biodivine.TaskStateFailed)
	} else {
		st.to(biodivine.TaskStateSucceeded)
	}
	return disp.finish(logger, res), nil
}

// Close releases connections held by the transport. The Dispatcher
// must not be used afterwards.
func (disp *Dispatcher) Close() {
	if c, ok := disp.Transport.(interface{ Close() }); ok {
		c.Close()
	}
}

func (disp *Dispatcher) finish(logger logrus.FieldLogger, res *Result) *Result {
	res.Finished = time.Now()
	disp.metrics.outcomes.WithLabelValues(reasonLabel(res.Outcome)).Inc()
	logger.WithFields(logrus.Fields{
		"Outcome": res.Outcome.String(),
		"Elapsed": res.Finished.Sub(res.Started),
	}).Info("task finished")
	return res
}

func (disp *Dispatcher) runLocal(ctx context.Context, task biodivine.Task, args, env []string) RankResult {
	super := &supervisor.Supervisor{Stdout: disp.stdout}
	return disp.track(func() (int, biodivine.Outcome) {
		return super.Run(ctx, args, env, task.Timeout())
	})
}

// runCluster starts one remote supervisor per rank and waits for
// all of them. It also returns the rank that cancelled the others,
// or -1.
func (disp *Dispatcher) runCluster(ctx context.Context, task biodivine.Task, ranks []biodivine.RankAssignment, home string) ([]RankResult, int) {
	logger := ctxlog.FromContext(ctx)
	results := make([]RankResult, len(ranks))
	configFile, err := portmap.WriteConfigFile(task.Root, ranks)
	if err != nil {
		logger.WithError(err).Error("cannot write cluster configuration")
		for i, ra := range ranks {
			results[i] = RankResult{
				Rank:     ra.Rank,
				Host:     ra.Host,
				PortA:    ra.PortA,
				PortB:    ra.PortB,
				ExitCode: -1,
				Outcome:  biodivine.Outcome{Reason: biodivine.ReasonLaunchError, ExitCode: -1, Message: err.Error()},
			}
		}
		return results, -1
	}
	logger.WithField("Hosts", len(ranks)).Info("starting cluster ranks")

	env := middlewareEnv(home)
	token := &supervisor.CancellationToken{}
	var wg sync.WaitGroup
	for i, ra := range ranks {
		wg.Add(1)
		go func(i int, ra biodivine.RankAssignment) {
			defer wg.Done()
			args, err := disp.rankCommand(task, ra.Rank, configFile)
			rs := &supervisor.RemoteSupervisor{
				Supervisor:   supervisor.Supervisor{Stdout: disp.stdout},
				Transport:    disp.Transport,
				Host:         ra.Host,
				Rank:         ra.Rank,
				Token:        token,
				Dir:          disp.WorkDir,
				PollInterval: disp.PollInterval,
			}
			result := disp.track(func() (int, biodivine.Outcome) {
				if err != nil {
					return -1, biodivine.Outcome{Reason: biodivine.ReasonLaunchError, ExitCode: -1, Message: err.Error()}
				}
				return rs.Run(ctx, args, env, task.Timeout())
			})
			result.Rank, result.Host, result.PortA, result.PortB = ra.Rank, ra.Host, ra.PortA, ra.PortB
			results[i] = result
		}(i, ra)
	}
	wg.Wait()

	rank, ok := token.Trigger()
	if !ok {
		return results, -1
	}
	logger.WithFields(logrus.Fields{
		"Rank":    rank,
		"Outcome": results[rank].Outcome.String(),
	}).Info("cluster cancelled by failed rank")
	return results, rank
}

// track runs one supervised process and records its metrics.
func (disp *Dispatcher) track(run func() (int, biodivine.Outcome)) RankResult {
	disp.metrics.running.Inc()
	defer disp.metrics.running.Dec()
	result := RankResult{Started: time.Now()}
	result.ExitCode, result.Outcome = run()
	result.Finished = time.Now()
	disp.metrics.seconds.Observe(result.Finished.Sub(result.Started).Seconds())
	return result
}

// aggregate returns the task outcome: Success if every rank
// succeeded, otherwise the outcome of the rank that cancelled its
// siblings, or failing that the lowest failed rank.
func aggregate(ranks []RankResult, cancelledBy int) biodivine.Outcome {
	if cancelledBy >= 0 && cancelledBy < len(ranks) {
		return ranks[cancelledBy].Outcome
	}
	for _, r := range ranks {
		if r.Outcome.Failed() {
			return r.Outcome
		}
	}
	return biodivine.Success
}

// String implements fmt.Stringer.
func (res *Result) String() string {
	return fmt.Sprintf("%s: %s (%s)", res.Task, res.Outcome, res.State)
}
