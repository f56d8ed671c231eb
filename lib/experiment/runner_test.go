// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package experiment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sybila/biodivine/lib/cmdtest"
	"github.com/sybila/biodivine/lib/config"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
	check "gopkg.in/check.v1"
)

// Gocheck boilerplate
func Test(t *testing.T) {
	check.TestingT(t)
}

var _ = check.Suite(&RunnerSuite{})

type RunnerSuite struct {
	tmpdir string
	worker string
}

func (s *RunnerSuite) SetUpTest(c *check.C) {
	s.tmpdir = c.MkDir()
	// Stand-in worker: prints its task name, fails if the
	// serialized task asks it to.
	s.worker = filepath.Join(s.tmpdir, "worker.sh")
	script := `#!/bin/sh
name="$4"
case "$6" in
	*fail:*) echo "$name failing"; exit 2;;
esac
echo "$name ok"
`
	c.Assert(os.WriteFile(s.worker, []byte(script), 0755), check.IsNil)
}

func (s *RunnerSuite) load(c *check.C, yml string) *biodivine.Config {
	ldr := config.NewLoader(bytes.NewBufferString(yml), ctxlog.TestLogger(c))
	cfg, err := ldr.Load()
	c.Assert(err, check.IsNil)
	cfg.Launcher.Worker.Command = s.worker
	return cfg
}

func (s *RunnerSuite) TestSingleTask(c *check.C) {
	var stdout, stderr bytes.Buffer
	r := &Runner{
		Config:  s.load(c, "experiment: single\ntasks: [{model: m.bio}]\n"),
		BaseDir: s.tmpdir,
		Stdout:  &stdout,
		Stderr:  &stderr,
	}
	ok, err := r.Run(context.Background())
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, true)
	c.Check(r.Root, check.Equals, filepath.Join(s.tmpdir, "single"))
	c.Check(stdout.String(), check.Equals, "task ok\n")
	c.Assert(r.Results, check.HasLen, 1)
	c.Check(r.Results[0].State, check.Equals, biodivine.TaskStateSucceeded)

	for _, fnm := range []string{GlobalLogFile, BuildInfoFile, EnvironmentInfoFile, MetricsFile} {
		_, err := os.Stat(filepath.Join(r.Root, fnm))
		c.Check(err, check.IsNil, check.Commentf("%s", fnm))
	}
	_, err = os.Stat(filepath.Join(r.Root, "task-0"))
	c.Check(os.IsNotExist(err), check.Equals, true)

	logged, err := os.ReadFile(filepath.Join(r.Root, GlobalLogFile))
	c.Assert(err, check.IsNil)
	c.Check(string(logged), check.Matches, `(?ms).*experiment is prepared.*`)
	c.Check(stderr.String(), check.Equals, string(logged))

	metrics, err := os.ReadFile(filepath.Join(r.Root, MetricsFile))
	c.Assert(err, check.IsNil)
	c.Check(string(metrics), check.Matches, `(?ms).*biodivine_dispatch_tasks_total{topology="none"} 1\n.*`)
	c.Check(string(metrics), check.Matches, `(?ms).*biodivine_dispatch_outcomes_total{reason="Success"} 1\n.*`)

	env, err := os.ReadFile(filepath.Join(r.Root, EnvironmentInfoFile))
	c.Assert(err, check.IsNil)
	c.Check(string(env), check.Matches, `(?ms)Computer name: .*\nOperating system: .*\nSystem time: .*\nNumber of processors: \d+\nMemory: .*\nGo version: go.*`)
}

func (s *RunnerSuite) TestMultipleTasksContinueAfterFailure(c *check.C) {
	var stdout, stderr bytes.Buffer
	r := &Runner{
		Config: s.load(c, `
experiment: multi
printBuildInfo: false
printEnvironmentInfo: false
tasks:
  - model: a.bio
  - fail: true
  - model: c.bio
`),
		BaseDir: s.tmpdir,
		Stdout:  &stdout,
		Stderr:  &stderr,
	}
	ok, err := r.Run(context.Background())
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, false)
	c.Assert(r.Results, check.HasLen, 3)
	c.Check(r.Results[0].Outcome, check.Equals, biodivine.Success)
	c.Check(r.Results[1].Outcome, check.Equals, biodivine.Outcome{Reason: biodivine.ReasonNonZeroExit, ExitCode: 2})
	c.Check(r.Results[2].Outcome, check.Equals, biodivine.Success)
	c.Check(stdout.String(), check.Equals, "task-0 ok\ntask-1 failing\ntask-2 ok\n")
	for i := 0; i < 3; i++ {
		fi, err := os.Stat(filepath.Join(r.Root, fmt.Sprintf("task-%d", i)))
		c.Assert(err, check.IsNil)
		c.Check(fi.IsDir(), check.Equals, true)
	}
	for _, fnm := range []string{BuildInfoFile, EnvironmentInfoFile} {
		_, err := os.Stat(filepath.Join(r.Root, fnm))
		c.Check(os.IsNotExist(err), check.Equals, true)
	}
}

func (s *RunnerSuite) TestNoTasks(c *check.C) {
	var stderr bytes.Buffer
	r := &Runner{Config: s.load(c, "experiment: empty\n"), BaseDir: s.tmpdir, Stdout: &bytes.Buffer{}, Stderr: &stderr}
	ok, err := r.Run(context.Background())
	c.Check(err, check.IsNil)
	c.Check(ok, check.Equals, true)
	c.Check(stderr.String(), check.Matches, `(?ms).*level=warning msg="no tasks specified".*`)
}

func (s *RunnerSuite) TestUniqueRoot(c *check.C) {
	c.Assert(os.Mkdir(filepath.Join(s.tmpdir, "exp"), 0755), check.IsNil)
	c.Assert(os.Mkdir(filepath.Join(s.tmpdir, "exp-1"), 0755), check.IsNil)
	dir, err := createUniqueDir(s.tmpdir, "exp")
	c.Assert(err, check.IsNil)
	c.Check(dir, check.Equals, filepath.Join(s.tmpdir, "exp-2"))
	dir, err = createUniqueDir(s.tmpdir, "other")
	c.Assert(err, check.IsNil)
	c.Check(dir, check.Equals, filepath.Join(s.tmpdir, "other"))
}

func (s *RunnerSuite) TestInvalidTaskRunsNothing(c *check.C) {
	r := &Runner{
		Config:  s.load(c, "experiment: bad\ntasks: [{model: a.bio}, {communicator: mpjCluster}]\n"),
		BaseDir: s.tmpdir,
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	}
	ok, err := r.Run(context.Background())
	c.Check(ok, check.Equals, false)
	c.Check(errors.Is(err, biodivine.ErrConfiguration), check.Equals, true)
	_, err = os.Stat(filepath.Join(s.tmpdir, "bad"))
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *RunnerSuite) TestMiddlewareErrorFailsOnlyThatTask(c *check.C) {
	var stdout bytes.Buffer
	r := &Runner{
		Config: s.load(c, `
experiment: mixed
tasks:
  - communicator: {type: mpjLocal, workers: 2, mpjHome: /nonexistent/mpj}
  - model: ok.bio
`),
		BaseDir: s.tmpdir,
		Stdout:  &stdout,
		Stderr:  &bytes.Buffer{},
	}
	ok, err := r.Run(context.Background())
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, false)
	c.Check(r.Results[0].State, check.Equals, biodivine.TaskStateFailed)
	c.Check(r.Results[0].Outcome.Message, check.Matches, `configuration error: invalid middleware home.*`)
	c.Check(r.Results[1].Outcome, check.Equals, biodivine.Success)
	c.Check(stdout.String(), check.Equals, "task-1 ok\n")
}

func (s *RunnerSuite) TestCancel(c *check.C) {
	cfg := s.load(c, "experiment: slow\ntasks: [{model: a.bio}]\n")
	script := filepath.Join(s.tmpdir, "slow.sh")
	c.Assert(os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 60\n"), 0755), check.IsNil)
	cfg.Launcher.Worker.Command = script
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	r := &Runner{Config: cfg, BaseDir: s.tmpdir, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	t0 := time.Now()
	ok, err := r.Run(ctx)
	c.Check(err, check.IsNil)
	c.Check(ok, check.Equals, false)
	c.Check(time.Since(t0) < 10*time.Second, check.Equals, true)
	c.Check(r.Results[0].Outcome.Reason, check.Equals, biodivine.ReasonCascaded)
}

func (s *RunnerSuite) TestBuildInfo(c *check.C) {
	var buf bytes.Buffer
	c.Assert(writeBuildInfo(&buf), check.IsNil)
	c.Check(buf.String(), check.Matches, `(?ms)Launcher:\n\tVERSION: .*`)
}

var _ = check.Suite(&CommandSuite{})

type CommandSuite struct{}

func (s *CommandSuite) TestUsage(c *check.C) {
	var stderr bytes.Buffer
	code := Command.RunCommand("biodivine run", nil, nil, &bytes.Buffer{}, &stderr)
	c.Check(code, check.Equals, 2)
	c.Check(stderr.String(), check.Equals, "Usage: biodivine run [options] config-file\n")
}

func (s *CommandSuite) TestRunFromStdin(c *check.C) {
	defer cmdtest.LeakCheck(c)()
	tmpdir := c.MkDir()
	worker := filepath.Join(tmpdir, "worker.sh")
	c.Assert(os.WriteFile(worker, []byte("#!/bin/sh\necho \"worker $4\"\n"), 0755), check.IsNil)
	in := "launcher: {worker: {command: " + worker + "}}\ntasks: [{}]\n"
	var stdout, stderr bytes.Buffer
	code := Command.RunCommand("biodivine run", []string{"--dir", tmpdir, "--log-format=json", "-"}, bytes.NewBufferString(in), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, "worker task\n")
	c.Check(stderr.String(), check.Matches, `(?ms)\{.*"msg":"experiment is prepared, executing tasks".*`)
	_, err := os.Stat(filepath.Join(tmpdir, config.StdinName, GlobalLogFile))
	c.Check(err, check.IsNil)
}

func (s *CommandSuite) TestRunFailure(c *check.C) {
	tmpdir := c.MkDir()
	in := "launcher: {worker: {command: /bin/false}}\ntasks: [{}]\n"
	var stderr bytes.Buffer
	code := Command.RunCommand("biodivine run", []string{"-d", tmpdir, "-"}, bytes.NewBufferString(in), &bytes.Buffer{}, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(strings.Contains(stderr.String(), "Failure(NonZeroExit(1))"), check.Equals, true)
}

func (s *CommandSuite) TestConfigError(c *check.C) {
	var stderr bytes.Buffer
	code := Command.RunCommand("biodivine run", []string{"--dir", c.MkDir(), "-"}, bytes.NewBufferString("tasks: [{maxMemory: -1}]"), &bytes.Buffer{}, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Equals, "tasks[0]: configuration error: maxMemory must be positive, got -1\n")
}
