// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package biodivine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	check "gopkg.in/check.v1"
)

// Gocheck boilerplate
func Test(t *testing.T) {
	check.TestingT(t)
}

var _ = check.Suite(&SDKSuite{})

type SDKSuite struct{}

func (s *SDKSuite) TestTaskConfigDefaults(c *check.C) {
	var tc TaskConfig
	c.Assert(json.Unmarshal([]byte(`{"model":"m.bio"}`), &tc), check.IsNil)
	c.Check(tc.Type, check.Equals, TaskTypeCTLParameterEstimation)
	c.Check(tc.MaxMemory, check.Equals, 1024)
	c.Check(tc.Timeout, check.Equals, -1)
	c.Check(tc.Communicator, check.DeepEquals, CommunicatorConfig{Type: "none", Workers: 1})
	c.Check(tc.JobQueue.Type, check.Equals, JobQueueBlocking)
	c.Check(tc.Raw["model"], check.Equals, "m.bio")
}

func (s *SDKSuite) TestCommunicatorForms(c *check.C) {
	var tc TaskConfig
	c.Assert(json.Unmarshal([]byte(`{"communicator":"sharedMemory","jobQueue":{"type":"mergeQueue"}}`), &tc), check.IsNil)
	c.Check(tc.Communicator, check.DeepEquals, CommunicatorConfig{Type: "sharedMemory", Workers: 1, Bare: true})
	c.Check(tc.JobQueue.Type, check.Equals, JobQueueMerge)

	c.Assert(json.Unmarshal([]byte(`{"communicator":{"type":"mpjCluster","hosts":["a","b"],"portRange":"5000-5010"},"jobQueue":"blockingQueue"}`), &tc), check.IsNil)
	c.Check(tc.Communicator.Type, check.Equals, "mpjCluster")
	c.Check(tc.Communicator.Hosts, check.DeepEquals, []string{"a", "b"})
	c.Check(tc.Communicator.PortRange, check.Equals, "5000-5010")
	c.Check(tc.Communicator.Workers, check.Equals, 1)
	c.Check(tc.Communicator.Bare, check.Equals, false)
	c.Check(tc.JobQueue.Type, check.Equals, JobQueueBlocking)

	err := json.Unmarshal([]byte(`{"communicator":{"workers":"many"}}`), &tc)
	c.Check(err, check.ErrorMatches, `communicator: .*`)
}

func (s *SDKSuite) TestDuration(c *check.C) {
	var d Duration
	c.Check(json.Unmarshal([]byte(`"1m30s"`), &d), check.IsNil)
	c.Check(d.Duration(), check.Equals, 90*time.Second)
	c.Check(json.Unmarshal([]byte(`10`), &d), check.ErrorMatches, `missing unit in duration "10"`)
	c.Check(Duration(time.Hour).String(), check.Equals, "1h")
	c.Check(Duration(2*time.Minute).String(), check.Equals, "2m")
	c.Check(Duration(90*time.Minute).String(), check.Equals, "1h30m")
	c.Check(Duration(time.Hour+time.Second).String(), check.Equals, "1h0m1s")
	c.Check(Duration(1500*time.Millisecond).String(), check.Equals, "1.5s")
	c.Check(Duration(0).String(), check.Equals, "0s")
	buf, err := json.Marshal(Duration(time.Second))
	c.Check(err, check.IsNil)
	c.Check(string(buf), check.Equals, `"1s"`)
}

func (s *SDKSuite) TestTask(c *check.C) {
	c.Check(Task{TimeoutSeconds: -1}.Timeout(), check.Equals, time.Duration(0))
	c.Check(Task{TimeoutSeconds: 0}.Timeout(), check.Equals, time.Duration(0))
	c.Check(Task{TimeoutSeconds: 3}.Timeout(), check.Equals, 3*time.Second)
	c.Check(Task{Topology: NoTopology{}}.WorkerCount(), check.Equals, 1)
	c.Check(Task{Topology: SharedMemory{Workers: 4}}.WorkerCount(), check.Equals, 4)
	c.Check(Task{Topology: LocalCluster{Workers: 3}}.WorkerCount(), check.Equals, 3)
	c.Check(Task{Topology: RemoteCluster{Hosts: []string{"a", "b"}}}.WorkerCount(), check.Equals, 2)
	c.Check(RemoteCluster{}.Kind(), check.Equals, TopologyRemoteCluster)
}

func (s *SDKSuite) TestOutcome(c *check.C) {
	c.Check(OutcomeFromExitCode(0), check.Equals, Success)
	c.Check(Success.Failed(), check.Equals, false)
	o := OutcomeFromExitCode(3)
	c.Check(o.Failed(), check.Equals, true)
	c.Check(o.String(), check.Equals, "Failure(NonZeroExit(3))")
	c.Check(Outcome{Reason: ReasonTimedOut}.String(), check.Equals, "Failure(TimedOut)")
	c.Check(Outcome{Reason: ReasonLaunchError, Message: "no such file"}.String(), check.Equals, "Failure(LaunchError(no such file))")
}

func (s *SDKSuite) TestTaskState(c *check.C) {
	for _, trial := range []struct {
		from, to TaskState
		ok       bool
	}{
		{TaskStatePending, TaskStateDispatched, true},
		{TaskStatePending, TaskStateFailed, true},
		{TaskStatePending, TaskStateRunning, false},
		{TaskStateDispatched, TaskStateRunning, true},
		{TaskStateDispatched, TaskStateSucceeded, false},
		{TaskStateRunning, TaskStateSucceeded, true},
		{TaskStateRunning, TaskStateFailed, true},
		{TaskStateSucceeded, TaskStateFailed, false},
		{TaskStateFailed, TaskStatePending, false},
	} {
		c.Check(trial.from.CanTransitionTo(trial.to), check.Equals, trial.ok, check.Commentf("%s -> %s", trial.from, trial.to))
	}
	c.Check(TaskStateSucceeded.Terminal(), check.Equals, true)
	c.Check(TaskStateRunning.Terminal(), check.Equals, false)
}

func (s *SDKSuite) TestConfigError(c *check.C) {
	err := ConfigErrorf("bad %s", "thing")
	c.Check(errors.Is(err, ErrConfiguration), check.Equals, true)
	c.Check(err, check.ErrorMatches, `configuration error: bad thing`)
}
