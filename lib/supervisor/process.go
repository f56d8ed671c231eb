// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// A Process is a child that a supervisor can start, wait for, and
// kill. Implementations exist for local programs and for SSH
// sessions.
type Process interface {
	// Start starts the process with its standard output and
	// standard error connected to the given files.
	Start(stdout, stderr *os.File) error
	// Wait waits for the process to exit and returns its exit
	// code. A non-nil error means the exit code could not be
	// determined, in which case the code is -1.
	Wait() (int, error)
	// Kill forcibly terminates the process.
	Kill() error
}

// NewProcess returns a Process that runs cmd on the local host. The
// command runs in its own process group, which Kill signals as a
// whole.
func NewProcess(cmd *exec.Cmd) Process {
	return &execProcess{cmd: cmd}
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Start(stdout, stderr *os.File) error {
	p.cmd.Stdout = stdout
	p.cmd.Stderr = stderr
	if p.cmd.SysProcAttr == nil {
		p.cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	p.cmd.SysProcAttr.Setpgid = true
	return p.cmd.Start()
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *execProcess) Kill() error {
	// Signal the whole group, otherwise a shell wrapper's
	// children would survive and keep our output pipes open.
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) String() string {
	return p.cmd.String()
}
