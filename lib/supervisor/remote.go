// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package supervisor

import (
	"context"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
)

// DefaultPollInterval is how often a remote supervisor checks its
// cancellation token when PollInterval is zero.
const DefaultPollInterval = time.Second

// A RemoteSupervisor runs one rank of a cluster task on a remote
// host. When its worker fails it cancels the shared token, and when
// another rank cancels the token first it kills its own worker.
type RemoteSupervisor struct {
	Supervisor
	Transport Transport
	Host      string
	Rank      int
	// Shared by all ranks of one launch. Nil means this rank
	// never cascades.
	Token *CancellationToken
	// Directory the remote shell changes to before starting the
	// worker. Empty means the launcher's working directory.
	Dir          string
	PollInterval time.Duration
}

// Run starts the worker on rs.Host and waits for it, like
// Supervisor.Run. A timeout or a non-zero exit cancels the token; a
// launch error does not.
func (rs *RemoteSupervisor) Run(ctx context.Context, args []string, env []string, timeout time.Duration) (int, biodivine.Outcome) {
	logger := ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"Rank": rs.Rank,
		"Host": rs.Host,
	})
	ctx = ctxlog.Context(ctx, logger)

	dir := rs.Dir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return -1, launchError(err)
		}
	}
	for _, kv := range env {
		if k, _, _ := strings.Cut(kv, "="); !ValidEnvName(k) {
			logger.WithField("Name", k).Warn("skipping environment variable with invalid name")
		}
	}
	payload := Payload(dir, env, args)
	logger.WithField("Payload", payload).Debug("starting remote worker")
	proc, err := rs.Transport.Command(rs.Host, payload)
	if err != nil {
		logger.WithError(err).Error("cannot start remote worker")
		return -1, launchError(err)
	}

	var cancelled func() bool
	if rs.Token != nil {
		cancelled = rs.Token.Cancelled
	}
	poll := rs.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	code, outcome := rs.supervise(ctx, proc, timeout, cancelled, poll)

	switch outcome.Reason {
	case biodivine.ReasonNonZeroExit, biodivine.ReasonTimedOut:
		if rs.Token != nil && rs.Token.Cancel(rs.Rank) {
			logger.WithField("Outcome", outcome.String()).Info("cancelling other ranks")
		}
	}
	return code, outcome
}

// Payload returns a POSIX shell command line that changes to dir,
// exports env, and runs args. Entries of env whose names are not
// valid shell variable names are left out.
func Payload(dir string, env []string, args []string) string {
	var b strings.Builder
	b.WriteString("cd " + ShellQuote(dir) + ";")
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !ValidEnvName(k) {
			continue
		}
		b.WriteString(" export " + k + "=" + ShellQuote(v) + ";")
	}
	for _, arg := range args {
		b.WriteString(" " + ShellQuote(arg))
	}
	return b.String()
}

// ValidEnvName returns true if name can be assigned by a POSIX
// shell: a letter or underscore followed by letters, digits and
// underscores.
func ValidEnvName(name string) bool {
	return envNameRe.MatchString(name)
}

var envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ShellQuote returns s in single quotes, so a POSIX shell reads it
// as one word with no expansion.
func ShellQuote(s string) string {
	return "'" + strings.Replace(s, "'", "'\\''", -1) + "'"
}
