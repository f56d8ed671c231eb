// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package dispatch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/sybila/biodivine/sdk/go/biodivine"
)

// DefaultDevice is the communication device passed to cluster
// ranks when the worker configuration names none.
const DefaultDevice = "niodev"

// runtime returns the configured worker runtime command line.
func (disp *Dispatcher) runtime() ([]string, error) {
	args, err := shlex.Split(disp.Worker.Command)
	if err != nil {
		return nil, biodivine.ConfigErrorf("worker command %q: %s", disp.Worker.Command, err)
	}
	if len(args) == 0 {
		return nil, biodivine.ConfigErrorf("worker command is empty")
	}
	return args, nil
}

func (disp *Dispatcher) memoryFlag(mb int) []string {
	if disp.Worker.MemoryFlag == "" {
		return nil
	}
	return []string{fmt.Sprintf(disp.Worker.MemoryFlag, mb)}
}

func (disp *Dispatcher) device() string {
	if disp.Worker.Device == "" {
		return DefaultDevice
	}
	return disp.Worker.Device
}

// workerArgs returns the positional arguments every worker gets:
// log level, task name, task root, serialized task configuration.
func (disp *Dispatcher) workerArgs(task biodivine.Task) []string {
	level := strings.ToLower(disp.ConsoleLogLevel)
	if level == "" {
		level = "info"
	}
	return []string{level, task.Name, task.Root, task.Document}
}

// localCommand returns the command line of the single worker
// process of a NoTopology or SharedMemory task.
func (disp *Dispatcher) localCommand(task biodivine.Task) ([]string, error) {
	rt, err := disp.runtime()
	if err != nil {
		return nil, err
	}
	mem, entry := task.MemoryLimitMB, disp.Worker.Entrypoints.Sequential
	if topo, ok := task.Topology.(biodivine.SharedMemory); ok {
		mem, entry = task.MemoryLimitMB*topo.Workers, disp.Worker.Entrypoints.SharedMemory
	}
	args := append([]string(nil), rt...)
	args = append(args, disp.memoryFlag(mem)...)
	if entry != "" {
		args = append(args, entry)
	}
	return append(args, disp.workerArgs(task)...), nil
}

// localClusterCommand returns the command line that starts the
// middleware's multi-process starter with topo.Workers ranks.
func (disp *Dispatcher) localClusterCommand(task biodivine.Task, topo biodivine.LocalCluster, home string) ([]string, error) {
	rt, err := disp.runtime()
	if err != nil {
		return nil, err
	}
	jar := disp.Worker.StarterJar
	if !filepath.IsAbs(jar) {
		jar = filepath.Join(home, jar)
	}
	args := []string{rt[0], "-jar", jar, "-np", strconv.Itoa(topo.Workers)}
	args = append(args, rt[1:]...)
	args = append(args, disp.memoryFlag(task.MemoryLimitMB)...)
	if entry := disp.Worker.Entrypoints.Distributed; entry != "" {
		args = append(args, entry)
	}
	return append(args, disp.workerArgs(task)...), nil
}

// rankCommand returns the command line of one rank of a
// RemoteCluster task.
func (disp *Dispatcher) rankCommand(task biodivine.Task, rank int, configFile string) ([]string, error) {
	rt, err := disp.runtime()
	if err != nil {
		return nil, err
	}
	args := append([]string(nil), rt...)
	args = append(args, disp.memoryFlag(task.MemoryLimitMB)...)
	if entry := disp.Worker.Entrypoints.Distributed; entry != "" {
		args = append(args, entry)
	}
	args = append(args, strconv.Itoa(rank), configFile, disp.device())
	return append(args, disp.workerArgs(task)...), nil
}

// middlewareEnv returns the environment overrides for workers that
// use the middleware installed in home.
func middlewareEnv(home string) []string {
	return []string{
		"MPJ_HOME=" + home,
		"PATH=" + filepath.Join(home, "bin") + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
}

// checkMiddlewareHome returns the absolute path of home after making
// sure it is a readable directory.
func checkMiddlewareHome(home string) (string, error) {
	if home == "" {
		return "", biodivine.ConfigErrorf("middleware home not set (set mpjHome, launcher.middlewareHome or $MPJ_HOME)")
	}
	abs, err := filepath.Abs(home)
	if err != nil {
		return "", biodivine.ConfigErrorf("invalid middleware home %q: %s", home, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", biodivine.ConfigErrorf("invalid middleware home: %s", err)
	}
	if !fi.IsDir() {
		return "", biodivine.ConfigErrorf("invalid middleware home %q: not a directory", abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", biodivine.ConfigErrorf("invalid middleware home: %s", err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && err != io.EOF {
		return "", biodivine.ConfigErrorf("invalid middleware home: %s", err)
	}
	return abs, nil
}
