// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package experiment runs every task of an experiment file in a
// fresh output directory.
package experiment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/lib/config"
	"github.com/sybila/biodivine/lib/dispatch"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
)

// Names of the files an experiment writes into its root directory.
const (
	GlobalLogFile       = "global-log.log"
	BuildInfoFile       = "build-info.txt"
	EnvironmentInfoFile = "environment-info.txt"
	MetricsFile         = "metrics.txt"
)

// A Runner runs one experiment.
type Runner struct {
	Config *biodivine.Config
	// Parent of the experiment directory. Empty means the
	// current directory.
	BaseDir string
	// Worker stdout is copied to Stdout; the launcher log goes to
	// Stderr and to the experiment's global log file.
	Stdout io.Writer
	Stderr io.Writer

	// Set by Run.
	Root    string
	Results []*dispatch.Result
}

// Run validates every task, creates the experiment directory, and
// runs the tasks in order. A failed task does not stop the ones
// after it. Run returns true if every task succeeded.
//
// The returned error is non-nil if the experiment could not be run
// at all. In that case no task has been started.
func (r *Runner) Run(ctx context.Context) (bool, error) {
	cfg := r.Config
	tasks, err := config.Tasks(cfg)
	if err != nil {
		return false, err
	}
	r.Root, err = createUniqueDir(r.BaseDir, cfg.Experiment)
	if err != nil {
		return false, err
	}

	logf, err := os.OpenFile(filepath.Join(r.Root, GlobalLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return false, err
	}
	defer logf.Close()
	stderr := r.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := ctxlog.New(io.MultiWriter(stderr, logf), cfg.LogFormat, cfg.ConsoleLogLevel).WithFields(logrus.Fields{
		"Experiment": cfg.Experiment,
	})
	ctx = ctxlog.Context(ctx, logger)

	if cfg.PrintBuildInfo {
		if err := writeFile(filepath.Join(r.Root, BuildInfoFile), writeBuildInfo); err != nil {
			logger.WithError(err).Warn("cannot write build info")
		}
	}
	if cfg.PrintEnvironmentInfo {
		err := writeFile(filepath.Join(r.Root, EnvironmentInfoFile), func(w io.Writer) error {
			return writeEnvironmentInfo(w, time.Now())
		})
		if err != nil {
			logger.WithError(err).Warn("cannot write environment info")
		}
	}

	reg := prometheus.NewRegistry()
	disp, err := dispatch.New(cfg, r.Stdout, reg, logger)
	if err != nil {
		return false, err
	}
	defer disp.Close()

	logger.WithField("Root", r.Root).Info("experiment is prepared, executing tasks")
	if _, err := daemon.SdNotify(false, "READY=1"); err != nil {
		logger.WithError(err).Errorf("error notifying init daemon")
	}
	if len(tasks) == 0 {
		logger.Warn("no tasks specified")
	}
	ok := true
	for _, task := range tasks {
		task.Root = filepath.Join(r.Root, task.Root)
		daemon.SdNotify(false, "STATUS=running "+task.Name)
		res, err := disp.Dispatch(ctx, task)
		if err != nil {
			logger.WithError(err).WithField("Task", task.Name).Error("cannot dispatch task")
			res = &dispatch.Result{
				Task:        task.Name,
				State:       biodivine.TaskStateFailed,
				Outcome:     biodivine.Outcome{Reason: biodivine.ReasonLaunchError, ExitCode: -1, Message: err.Error()},
				CancelledBy: -1,
			}
		}
		r.Results = append(r.Results, res)
		if res.Outcome.Failed() {
			ok = false
		}
	}

	if err := writeFile(filepath.Join(r.Root, MetricsFile), func(w io.Writer) error {
		return writeMetrics(w, reg)
	}); err != nil {
		logger.WithError(err).Warn("cannot write metrics")
	}
	for _, res := range r.Results {
		logger.WithField("Task", res.Task).Info(res.Outcome.String())
	}
	return ok, nil
}

// createUniqueDir creates and returns base/name, or base/name-1,
// base/name-2, ... if it already exists.
func createUniqueDir(base, name string) (string, error) {
	if name == "" {
		return "", biodivine.ConfigErrorf("experiment name is empty")
	}
	if base == "" {
		base = "."
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, name)
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0777)
		if err == nil {
			return dir, nil
		} else if !os.IsExist(err) {
			return "", fmt.Errorf("cannot create experiment directory: %w", err)
		}
		dir = filepath.Join(base, fmt.Sprintf("%s-%d", name, i))
	}
}
