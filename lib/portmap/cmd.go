// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package portmap

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/sybila/biodivine/lib/cmd"
)

// Command prints the host table for a host list and port range, the
// same file a cluster launch would hand to its workers.
var Command cmd.Handler = command{}

type command struct{}

func (command) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	hosts := flags.String("hosts", "", "comma-separated `list` of hosts, in rank order")
	ports := flags.String("ports", "", "port `range` like 5000-5010")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	var hostList []string
	for _, h := range strings.Split(*hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hostList = append(hostList, h)
		}
	}
	ranks, err := Allocate(hostList, *ports)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", prog, err)
		return 1
	}
	if err := WriteConfig(stdout, ranks); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", prog, err)
		return 1
	}
	return 0
}
