// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"bytes"

	"github.com/sybila/biodivine/lib/cmdtest"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&CommandSuite{})

type CommandSuite struct{}

func (s *CommandSuite) TestBadArg(c *check.C) {
	var stderr bytes.Buffer
	code := CheckCommand.RunCommand("biodivine check-config", []string{"-badarg"}, bytes.NewBuffer(nil), bytes.NewBuffer(nil), &stderr)
	c.Check(code, check.Equals, 2)
	c.Check(stderr.String(), check.Matches, `(?ms)error parsing command line arguments.*`)
}

func (s *CommandSuite) TestTooManyArgs(c *check.C) {
	var stderr bytes.Buffer
	code := CheckCommand.RunCommand("biodivine check-config", []string{"a.yml", "b.yml"}, bytes.NewBuffer(nil), bytes.NewBuffer(nil), &stderr)
	c.Check(code, check.Equals, 2)
	c.Check(stderr.String(), check.Matches, `Usage: biodivine check-config \[options\] config-file\n`)
}

func (s *CommandSuite) TestCheckValid(c *check.C) {
	defer cmdtest.LeakCheck(c)()
	var stdout, stderr bytes.Buffer
	in := `
experiment: cluster-run
tasks:
  - communicator: {type: sharedMemory, workers: 2}
    maxMemory: 512
  - communicator: {type: mpjCluster, hosts: [h1, h2], portRange: 6000-6100}
    timeout: 90
`
	code := CheckCommand.RunCommand("biodivine check-config", []string{"-"}, bytes.NewBufferString(in), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stderr.String(), check.Equals, "")
	c.Check(stdout.String(), check.Equals, `experiment "cluster-run": 2 task(s)
task-0: sharedMemory workers=2 maxMemory=512MB timeout=none
task-1: mpjCluster workers=2 maxMemory=1024MB timeout=1m30s hosts=[h1 h2] ports=6000-6100
`)
}

func (s *CommandSuite) TestCheckInvalid(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := CheckCommand.RunCommand("biodivine check-config", nil, bytes.NewBufferString("tasks: [{communicator: mpjCluster}]"), &stdout, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Equals, "tasks[0]: configuration error: mpjCluster communicator needs hosts and portRange\n")
}

func (s *CommandSuite) TestCheckUnknownKey(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := CheckCommand.RunCommand("biodivine check-config", nil, bytes.NewBufferString("launcher: {bogus: 1}\n"), &stdout, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?ms).*deprecated or unknown config entry: launcher.bogus.*`)
}

func (s *CommandSuite) TestDump(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := DumpCommand.RunCommand("biodivine config-dump", nil, bytes.NewBufferString("experiment: e2\nlauncher: {worker: {device: hybdev}}\n"), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stdout.String(), check.Matches, `(?ms).*Experiment: e2\n.*`)
	c.Check(stdout.String(), check.Matches, `(?ms).*Device: hybdev\n.*`)
	c.Check(stdout.String(), check.Matches, `(?ms).*StarterJar: lib/starter.jar\n.*`)
}

func (s *CommandSuite) TestDumpDefaults(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := DumpDefaultsCommand.RunCommand("biodivine config-defaults", nil, nil, &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stdout.Bytes(), check.DeepEquals, DefaultYAML)
}
