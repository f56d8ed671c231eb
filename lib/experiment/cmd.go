// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package experiment

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sybila/biodivine/lib/cmd"
	"github.com/sybila/biodivine/lib/config"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
	"rsc.io/getopt"
)

// Command runs an experiment file. The exit code is 0 if every task
// succeeded, 1 otherwise.
var Command cmd.Handler = runCommand{}

type runCommand struct{}

func (runCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := getopt.NewFlagSet("", flag.ContinueOnError)
	logFormat := flags.String("log-format", "", "log `format` (text or json), overrides the experiment file")
	baseDir := flags.String("dir", "", "create the experiment directory in `dir` instead of the current directory")
	flags.Alias("d", "dir")
	if ok, code := cmd.ParseFlagsArgs(flags, prog, args, "config-file", 1, stderr); !ok {
		return code
	}

	ldr := config.NewLoader(stdin, ctxlog.New(stderr, "text", "info"))
	ldr.Path = flags.Arg(0)
	cfg, err := ldr.Load()
	if err != nil {
		return 1
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	runner := &Runner{
		Config:  cfg,
		BaseDir: *baseDir,
		Stdout:  stdout,
		Stderr:  stderr,
	}
	ok, err := runner.Run(ctx)
	if err != nil || !ok {
		return 1
	}
	return 0
}
