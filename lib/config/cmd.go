// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/ghodss/yaml"
	"github.com/sybila/biodivine/lib/cmd"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
)

var CheckCommand cmd.Handler = checkCommand{}

type checkCommand struct{}

// RunCommand loads and validates an experiment file and prints one
// line per task. Warnings about unknown keys make the check fail.
func (checkCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	if ok, code := cmd.ParseFlags(flags, prog, args, "config-file", stderr); !ok {
		return code
	}
	path, code := configPath(flags, prog, stderr)
	if code != 0 {
		return code
	}
	log := &plainLogger{w: stderr}
	ldr := NewLoader(stdin, ctxlog.New(log, "text", "warning"))
	ldr.Path = path
	cfg, err := ldr.Load()
	if err != nil {
		return 1
	}
	tasks, err := Tasks(cfg)
	if err != nil {
		return 1
	}
	fmt.Fprintf(stdout, "experiment %q: %d task(s)\n", cfg.Experiment, len(tasks))
	for _, task := range tasks {
		fmt.Fprintln(stdout, Summary(task))
	}
	if log.used {
		return 1
	}
	return 0
}

var DumpCommand cmd.Handler = dumpCommand{}

type dumpCommand struct{}

// RunCommand prints the experiment file with defaults filled in.
func (dumpCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	if ok, code := cmd.ParseFlags(flags, prog, args, "config-file", stderr); !ok {
		return code
	}
	path, code := configPath(flags, prog, stderr)
	if code != 0 {
		return code
	}
	ldr := NewLoader(stdin, ctxlog.New(stderr, "text", "info"))
	ldr.Path = path
	cfg, err := ldr.Load()
	if err != nil {
		return 1
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return 1
	}
	_, err = stdout.Write(out)
	if err != nil {
		return 1
	}
	return 0
}

var DumpDefaultsCommand cmd.Handler = defaultsCommand{}

type defaultsCommand struct{}

func (defaultsCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	_, err := stdout.Write(DefaultYAML)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

// Summary returns a one-line description of a validated task.
func Summary(task biodivine.Task) string {
	timeout := "none"
	if d := task.Timeout(); d > 0 {
		timeout = d.String()
	}
	s := fmt.Sprintf("%s: %s workers=%d maxMemory=%dMB timeout=%s", task.Name, task.Topology.Kind(), task.WorkerCount(), task.MemoryLimitMB, timeout)
	if rc, ok := task.Topology.(biodivine.RemoteCluster); ok {
		s += fmt.Sprintf(" hosts=%v ports=%s", rc.Hosts, rc.PortRange)
	}
	return s
}

func configPath(flags *flag.FlagSet, prog string, stderr io.Writer) (string, int) {
	switch flags.NArg() {
	case 0:
		return "-", 0
	case 1:
		return flags.Arg(0), 0
	default:
		fmt.Fprintf(stderr, "Usage: %s [options] config-file\n", prog)
		return "", 2
	}
}

type plainLogger struct {
	w    io.Writer
	used bool
}

func (pl *plainLogger) Write(p []byte) (int, error) {
	pl.used = true
	return pl.w.Write(p)
}
