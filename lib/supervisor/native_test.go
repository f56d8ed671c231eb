// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package supervisor

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/lib/supervisor/sshtest"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
	"golang.org/x/crypto/ssh"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&NativeSuite{})

type NativeSuite struct {
	server    *sshtest.Server
	hostKey   ssh.Signer
	clientKey ssh.Signer
	ctx       context.Context
	stdout    *bytes.Buffer
}

func (s *NativeSuite) SetUpTest(c *check.C) {
	_, s.hostKey = sshtest.NewKey(c)
	clientPub, clientKey := sshtest.NewKey(c)
	s.clientKey = clientKey
	s.server = &sshtest.Server{
		Exec:           sshtest.ShellExec,
		HostKey:        s.hostKey,
		AuthorizedUser: "worker",
		AuthorizedKeys: []ssh.PublicKey{clientPub},
		Logger:         ctxlog.TestLogger(c),
	}
	c.Assert(s.server.Start(), check.IsNil)
	s.ctx = ctxlog.Context(context.Background(), ctxlog.TestLogger(c))
	s.stdout = &bytes.Buffer{}
}

func (s *NativeSuite) TearDownTest(c *check.C) {
	s.server.Close()
}

func (s *NativeSuite) transport() *NativeTransport {
	return &NativeTransport{
		User:            "worker",
		Signers:         []ssh.Signer{s.clientKey},
		HostKeyCallback: ssh.FixedHostKey(s.hostKey.PublicKey()),
		DialTimeout:     10 * time.Second,
	}
}

func (s *NativeSuite) remote(rank int, transport Transport, token *CancellationToken) *RemoteSupervisor {
	return &RemoteSupervisor{
		Supervisor:   Supervisor{Stdout: s.stdout},
		Transport:    transport,
		Host:         s.server.Address(),
		Rank:         rank,
		Token:        token,
		PollInterval: 50 * time.Millisecond,
	}
}

func (s *NativeSuite) TestExitStatus(c *check.C) {
	transport := s.transport()
	defer transport.Close()
	code, outcome := s.remote(0, transport, nil).Run(s.ctx, []string{"sh", "-c", "echo over ssh; echo warn >&2; exit 4"}, []string{"X=1"}, -1)
	c.Check(code, check.Equals, 4)
	c.Check(outcome, check.Equals, biodivine.Outcome{Reason: biodivine.ReasonNonZeroExit, ExitCode: 4})
	c.Check(s.stdout.String(), check.Equals, "over ssh\n")
}

func (s *NativeSuite) TestSessionsShareConnection(c *check.C) {
	transport := s.transport()
	defer transport.Close()
	for i := 0; i < 3; i++ {
		_, outcome := s.remote(i, transport, nil).Run(s.ctx, []string{"echo", "ok"}, nil, -1)
		c.Check(outcome, check.Equals, biodivine.Success)
	}
	c.Check(s.stdout.String(), check.Equals, "ok\nok\nok\n")
	c.Check(transport.clients, check.HasLen, 1)
}

func (s *NativeSuite) TestTimeoutKillsSession(c *check.C) {
	transport := s.transport()
	defer transport.Close()
	var token CancellationToken
	t0 := time.Now()
	_, outcome := s.remote(1, transport, &token).Run(s.ctx, []string{"sleep", "60"}, nil, 300*time.Millisecond)
	c.Check(outcome.Reason, check.Equals, biodivine.ReasonTimedOut)
	c.Check(time.Since(t0) < 10*time.Second, check.Equals, true)
	rank, _ := token.Trigger()
	c.Check(rank, check.Equals, 1)
}

func (s *NativeSuite) TestUnauthorizedKey(c *check.C) {
	_, otherKey := sshtest.NewKey(c)
	transport := s.transport()
	transport.Signers = []ssh.Signer{otherKey}
	var token CancellationToken
	_, outcome := s.remote(0, transport, &token).Run(s.ctx, []string{"true"}, nil, -1)
	c.Check(outcome.Reason, check.Equals, biodivine.ReasonLaunchError)
	c.Check(outcome.Message, check.Matches, `.*unable to authenticate.*`)
	c.Check(token.Cancelled(), check.Equals, false)
}

func (s *NativeSuite) TestWrongHostKey(c *check.C) {
	otherPub, _ := sshtest.NewKey(c)
	transport := s.transport()
	transport.HostKeyCallback = ssh.FixedHostKey(otherPub)
	_, outcome := s.remote(0, transport, nil).Run(s.ctx, []string{"true"}, nil, -1)
	c.Check(outcome.Reason, check.Equals, biodivine.ReasonLaunchError)
}

func (s *NativeSuite) TestAddress(c *check.C) {
	transport := &NativeTransport{User: "default", Port: 2200}
	for _, trial := range []struct {
		host, user, addr string
	}{
		{"node1", "default", "node1:2200"},
		{"alice@node1", "alice", "node1:2200"},
		{"alice@node1:22", "alice", "node1:22"},
		{"10.0.0.1:2222", "default", "10.0.0.1:2222"},
	} {
		user, addr := transport.address(trial.host)
		c.Check(user, check.Equals, trial.user)
		c.Check(addr, check.Equals, trial.addr)
	}
}

func (s *NativeSuite) TestNewNativeTransportFromKeyFile(c *check.C) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	c.Assert(err, check.IsNil)
	block, err := ssh.MarshalPrivateKey(priv, "")
	c.Assert(err, check.IsNil)
	keyFile := filepath.Join(c.MkDir(), "id_ed25519")
	c.Assert(os.WriteFile(keyFile, pem.EncodeToMemory(block), 0600), check.IsNil)

	logbuf := &bytes.Buffer{}
	logger := logrus.New()
	logger.Out = logbuf
	tr, err := NewTransport(biodivine.SSHConfig{Transport: "native", User: "worker", PrivateKeyFile: keyFile, Port: 2222}, logger)
	c.Assert(err, check.IsNil)
	native := tr.(*NativeTransport)
	c.Check(native.User, check.Equals, "worker")
	c.Check(native.Port, check.Equals, 2222)
	c.Check(native.Signers, check.HasLen, 1)
	c.Check(logbuf.String(), check.Matches, `(?ms).*host keys will not be verified.*`)
}
