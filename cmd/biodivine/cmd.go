// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"os"

	"github.com/sybila/biodivine/lib/cmd"
	"github.com/sybila/biodivine/lib/config"
	"github.com/sybila/biodivine/lib/experiment"
	"github.com/sybila/biodivine/lib/portmap"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"run":             experiment.Command,
		"check-config":    config.CheckCommand,
		"config-dump":     config.DumpCommand,
		"config-defaults": config.DumpDefaultsCommand,
		"portmap":         portmap.Command,
	})
)

func main() {
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
