// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"flag"
	"fmt"
	"io"
)

// AnyArgs tells ParseFlagsArgs to accept any number of positional
// arguments.
const AnyArgs = -1

// ParseFlags parses args into f, writing usage and error messages to
// stderr. If positional is "", positional arguments are rejected;
// otherwise any number is accepted and positional names them in the
// usage line "Usage: {prog} [options] {positional}".
//
// ok is false if the program should exit now with exitCode: 0 after
// printing help, 2 after a usage error.
func ParseFlags(f FlagSet, prog string, args []string, positional string, stderr io.Writer) (ok bool, exitCode int) {
	return ParseFlagsArgs(f, prog, args, positional, AnyArgs, stderr)
}

// ParseFlagsArgs is like ParseFlags, but if nargs is not AnyArgs it
// also requires exactly nargs positional arguments.
func ParseFlagsArgs(f FlagSet, prog string, args []string, positional string, nargs int, stderr io.Writer) (ok bool, exitCode int) {
	f.Init(prog, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	switch err := f.Parse(args); err {
	case nil:
	case flag.ErrHelp:
		printUsage(f, prog, positional, stderr)
		return false, 0
	default:
		fmt.Fprintf(stderr, "error parsing command line arguments: %s (try -help)\n", err)
		return false, 2
	}
	switch {
	case positional == "" && f.NArg() > 0:
		fmt.Fprintf(stderr, "unrecognized command line arguments: %v (try -help)\n", f.Args())
		return false, 2
	case nargs != AnyArgs && f.NArg() != nargs:
		fmt.Fprintf(stderr, "Usage: %s [options] %s\n", prog, positional)
		return false, 2
	}
	return true, 0
}

// printUsage prints a plain FlagSet's own Usage func if it has one.
// Other flag sets, like getopt's, print their defaults under a
// generic usage line, which lists both the short and long names.
func printUsage(f FlagSet, prog, positional string, stderr io.Writer) {
	f.SetOutput(stderr)
	if f, ok := f.(*flag.FlagSet); ok && f.Usage != nil {
		f.Usage()
		return
	}
	fmt.Fprintf(stderr, "Usage: %s [options] %s\n", prog, positional)
	f.PrintDefaults()
}
