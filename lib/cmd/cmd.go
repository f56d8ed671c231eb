// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmd helps define reusable functions that can be exposed as
// [subcommands of] command line programs.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

type Handler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

type HandlerFunc func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int

func (f HandlerFunc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return f(prog, args, stdin, stdout, stderr)
}

// Version is a Handler that prints the package version (set at build
// time using -ldflags) and Go runtime version to stdout, and returns
// 0.
var Version versionCommand

var version = "dev"

type versionCommand struct{}

func (versionCommand) String() string {
	return fmt.Sprintf("%s (%s)", version, runtime.Version())
}

func (versionCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	prog = progBasename(prog)
	fmt.Fprintf(stdout, "%s %s (%s)\n", prog, version, runtime.Version())
	return 0
}

func progBasename(prog string) string {
	if i := strings.Index(prog, " "); i >= 0 {
		return filepath.Base(prog[:i]) + prog[i:]
	}
	return filepath.Base(prog)
}

// Multi is a Handler that looks up its first argument in a map, and
// invokes the resulting Handler with the remaining args. If the
// program itself is named "biodivine-{subcommand}", the subcommand is
// taken from the program name instead.
//
// Example:
//
//	os.Exit(Multi(map[string]Handler{
//	        "foobar": HandlerFunc(func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
//	                fmt.Fprintln(stdout, args[0])
//	                return 2
//	        }),
//	}).RunCommand("/usr/bin/multi", []string{"foobar", "baz"}, os.Stdin, os.Stdout, os.Stderr))
//
// ...prints "baz" and exits 2.
type Multi map[string]Handler

func (m Multi) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	_, basename := filepath.Split(prog)
	basename = strings.TrimPrefix(basename, "biodivine-")
	if cmd, ok := m[basename]; ok {
		return cmd.RunCommand(prog, args, stdin, stdout, stderr)
	} else if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s command [args]\n", prog)
		m.Usage(stderr)
		return 2
	} else if cmd, ok = m[args[0]]; ok {
		return cmd.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
	} else {
		fmt.Fprintf(stderr, "%s: unrecognized command %q\n", prog, args[0])
		m.Usage(stderr)
		return 2
	}
}

func (m Multi) Usage(stderr io.Writer) {
	var subcommands []string
	for sc := range m {
		if strings.HasPrefix(sc, "-") {
			// Some subcommands have alternate versions
			// like "--version" for compatibility. Don't
			// clutter the subcommand summary with those.
			continue
		}
		subcommands = append(subcommands, sc)
	}
	sort.Strings(subcommands)
	fmt.Fprintf(stderr, "\nAvailable commands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(stderr, "    %s\n", sc)
	}
}

// WithLateSubcommand wraps a Handler by skipping over some known
// flags to find a subcommand, and moving that subcommand to the front
// of the args before calling the wrapped Handler. For example:
//
//	// Translate [           --format foo subcommand bar]
//	//        to [subcommand --format foo            bar]
//	WithLateSubcommand(fooHandler, []string{"format"}, nil)
func WithLateSubcommand(run Handler, argFlags, boolFlags []string) Handler {
	return HandlerFunc(func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags := flag.NewFlagSet("prog", flag.ContinueOnError)
		for _, arg := range argFlags {
			flags.String(arg, "", "")
		}
		for _, arg := range boolFlags {
			flags.Bool(arg, false, "")
		}
		// Ignore errors. We can't report a useful error
		// message anyway.
		flags.SetOutput(ioutil.Discard)
		flags.Usage = func() {}
		flags.Parse(args)
		if flags.NArg() > 0 {
			// Move the first arg after the recognized
			// flags up to the front.
			flagargs := len(args) - flags.NArg()
			newargs := make([]string, len(args))
			newargs[0] = args[flagargs]
			copy(newargs[1:flagargs+1], args[:flagargs])
			copy(newargs[flagargs+1:], args[flagargs+1:])
			args = newargs
		}
		return run.RunCommand(prog, args, stdin, stdout, stderr)
	})
}

type FlagSet interface {
	Init(string, flag.ErrorHandling)
	Args() []string
	NArg() int
	Parse([]string) error
	SetOutput(io.Writer)
	PrintDefaults()
}
