// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package supervisor runs worker processes, locally or through a
// remote shell, relaying their output and enforcing timeouts and
// cluster-wide cancellation.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
)

// A Supervisor runs one process to completion or until it is
// killed. Each line the process writes to stdout is copied to
// Stdout; each stderr line is logged at error level.
type Supervisor struct {
	// Destination for worker stdout lines. Nil means
	// os.Stdout. Writes of different lines are not interleaved
	// within one supervisor, but a writer shared by several
	// supervisors must serialize its own writes.
	Stdout io.Writer
	// How long to keep reading output after a killed worker has
	// exited, in case a process that escaped the kill still holds
	// the pipes. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration
}

// DefaultDrainTimeout is the post-kill output grace period used when
// Supervisor.DrainTimeout is zero.
const DefaultDrainTimeout = 10 * time.Second

type waitResult struct {
	code int
	err  error
}

// Run starts args[0] with arguments args[1:] on the local host and
// waits for it to exit. The entries of env (KEY=VALUE) override the
// launcher's own environment. If timeout is positive, the process
// is killed once it has run that long.
//
// Cancelling ctx kills the process, and the outcome is Cascaded.
func (super *Supervisor) Run(ctx context.Context, args []string, env []string, timeout time.Duration) (int, biodivine.Outcome) {
	if len(args) == 0 {
		return -1, launchError(errors.New("empty command line"))
	}
	cmd := exec.Command(args[0], args[1:]...)
	if len(env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), env)
	}
	logger := ctxlog.FromContext(ctx)
	logger.WithField("Command", args).Debug("starting worker")
	return super.supervise(ctx, NewProcess(cmd), timeout, nil, 0)
}

// supervise starts proc and waits for the first of: the process
// exits, the timeout expires, cancelled() returns true (checked
// every poll), or ctx is done. In all but the first case the
// process is killed, and no further condition is acted on.
//
// The returned exit code is -1 if the process did not start or its
// status is unknown.
func (super *Supervisor) supervise(ctx context.Context, proc Process, timeout time.Duration, cancelled func() bool, poll time.Duration) (int, biodivine.Outcome) {
	logger := ctxlog.FromContext(ctx)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return -1, launchError(err)
	}
	defer stdoutR.Close()
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutW.Close()
		return -1, launchError(err)
	}
	defer stderrR.Close()

	err = proc.Start(stdoutW, stderrW)
	if err != nil {
		stdoutW.Close()
		stderrW.Close()
		logger.WithError(err).Error("cannot start worker process")
		return -1, launchError(err)
	}

	stdout := super.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	var drains sync.WaitGroup
	drains.Add(2)
	go func() {
		defer drains.Done()
		drainLines(logger, "stdout", stdoutR, func(line string) {
			io.WriteString(stdout, line)
		})
	}()
	go func() {
		defer drains.Done()
		drainLines(logger, "stderr", stderrR, func(line string) {
			logger.Error(strings.TrimSuffix(line, "\n"))
		})
	}()

	exited := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		exited <- waitResult{code, err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	var ticks <-chan time.Time
	if cancelled != nil {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		ticks = ticker.C
	}

	res, reason := watch(ctx.Done(), exited, deadline, ticks, cancelled)
	if reason != biodivine.ReasonNone {
		switch reason {
		case biodivine.ReasonTimedOut:
			logger.Errorf("worker was killed after exceeding timeout %s", timeout)
		default:
			logger.Error("worker was killed due to an error in another process")
		}
		if err := proc.Kill(); err != nil {
			logger.WithError(err).Warn("error killing worker")
		}
		res = <-exited
	}

	// Our copies of the write ends must be closed before the
	// drains can see EOF.
	stdoutW.Close()
	stderrW.Close()
	drained := make(chan struct{})
	go func() {
		drains.Wait()
		close(drained)
	}()
	if reason == biodivine.ReasonNone {
		<-drained
	} else {
		grace := super.DrainTimeout
		if grace <= 0 {
			grace = DefaultDrainTimeout
		}
		select {
		case <-drained:
		case <-time.After(grace):
			// Something outside the killed process group
			// (e.g., started with setsid) still has the
			// pipes open.
			logger.Warnf("worker output still open %s after kill, discarding the rest", grace)
			stdoutR.Close()
			stderrR.Close()
			<-drained
		}
	}

	if res.err != nil {
		logger.WithError(res.err).Warn("cannot determine worker exit status")
	}
	if reason != biodivine.ReasonNone {
		return res.code, biodivine.Outcome{Reason: reason, ExitCode: res.code}
	}
	outcome := biodivine.OutcomeFromExitCode(res.code)
	logger.WithFields(logrus.Fields{
		"ExitCode": res.code,
		"Outcome":  outcome.String(),
	}).Debug("worker exited")
	return res.code, outcome
}

// watch returns the wait result if the process exits before any kill
// condition is observed. Otherwise it returns the reason for the
// first kill condition. The exit channel is checked again after a
// condition fires so a process that has already exited is not
// reported as killed.
func watch(done <-chan struct{}, exited <-chan waitResult, deadline, ticks <-chan time.Time, cancelled func() bool) (waitResult, biodivine.Reason) {
	for {
		var reason biodivine.Reason
		select {
		case res := <-exited:
			return res, biodivine.ReasonNone
		case <-deadline:
			reason = biodivine.ReasonTimedOut
		case <-ticks:
			if !cancelled() {
				continue
			}
			reason = biodivine.ReasonCascaded
		case <-done:
			reason = biodivine.ReasonCascaded
		}
		select {
		case res := <-exited:
			return res, biodivine.ReasonNone
		default:
			return waitResult{}, reason
		}
	}
}

// drainLines calls emit for each line read from r, newline
// included. A final line without a newline gets one. Lines are not
// length-limited. If reading fails, the rest of r is discarded so
// the writer does not block.
func drainLines(logger logrus.FieldLogger, name string, r io.Reader, emit func(string)) {
	rd := bufio.NewReader(r)
	for {
		line, err := rd.ReadString('\n')
		if line != "" {
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			emit(line)
		}
		if err == io.EOF {
			return
		} else if err != nil {
			logger.WithError(err).WithField("Stream", name).Warn("error reading worker output")
			io.Copy(io.Discard, rd)
			return
		}
	}
}

func launchError(err error) biodivine.Outcome {
	return biodivine.Outcome{
		Reason:   biodivine.ReasonLaunchError,
		ExitCode: -1,
		Message:  fmt.Sprint(err),
	}
}
