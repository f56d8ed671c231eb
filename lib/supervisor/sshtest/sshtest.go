// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package sshtest provides an in-process SSH server for testing
// remote supervisors without a real sshd.
package sshtest

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	check "gopkg.in/check.v1"
)

// NewKey returns a freshly generated ssh keypair.
func NewKey(c *check.C) (ssh.PublicKey, ssh.Signer) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	c.Assert(err, check.IsNil)
	signer, err := ssh.NewSignerFromKey(priv)
	c.Assert(err, check.IsNil)
	return signer.PublicKey(), signer
}

// An ExecFunc handles an "exec" request and returns the exit
// status. ctx is cancelled when the client sends a signal or closes
// the session.
type ExecFunc func(ctx context.Context, command string, stdout, stderr io.Writer) uint32

// ShellExec runs command with /bin/sh on the local host, killing its
// process group when ctx is cancelled.
func ShellExec(ctx context.Context, command string, stdout, stderr io.Writer) uint32 {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(stderr, err)
		return 127
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err == nil {
		return 0
	} else if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return uint32(code)
		}
		return 128 + uint32(syscall.SIGKILL)
	}
	return 255
}

// A Server accepts SSH connections on an available loopback port
// and passes clients' "exec" requests to Exec.
type Server struct {
	Exec           ExecFunc
	HostKey        ssh.Signer
	AuthorizedUser string
	AuthorizedKeys []ssh.PublicKey
	Logger         logrus.FieldLogger

	listener net.Listener
	setup    sync.Once
	mtx      sync.Mutex
	started  chan bool
	closed   bool
	err      error
}

// Address returns the host:port where the server is listening, or
// "" if the server could not start.
func (srv *Server) Address() string {
	srv.Start()
	srv.mtx.Lock()
	defer srv.mtx.Unlock()
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Close stops accepting connections. Established connections are
// unaffected.
func (srv *Server) Close() {
	srv.Start()
	srv.mtx.Lock()
	ln := srv.listener
	srv.closed = true
	srv.mtx.Unlock()
	if ln != nil {
		ln.Close()
	}
}

// Start returns when the server is ready to accept connections.
func (srv *Server) Start() error {
	srv.setup.Do(func() {
		srv.started = make(chan bool)
		go srv.run()
	})
	<-srv.started
	return srv.err
}

func (srv *Server) logger() logrus.FieldLogger {
	if srv.Logger == nil {
		return logrus.StandardLogger()
	}
	return srv.Logger
}

func (srv *Server) run() {
	defer close(srv.started)
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			if srv.AuthorizedUser != "" && c.User() != srv.AuthorizedUser {
				return nil, fmt.Errorf("unknown user %q", c.User())
			}
			for _, ak := range srv.AuthorizedKeys {
				if bytes.Equal(ak.Marshal(), pubKey.Marshal()) {
					return &ssh.Permissions{}, nil
				}
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}
	config.AddHostKey(srv.HostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		srv.err = err
		return
	}
	srv.mtx.Lock()
	srv.listener = listener
	srv.mtx.Unlock()

	go func() {
		for {
			nConn, err := listener.Accept()
			if err != nil {
				srv.mtx.Lock()
				closed := srv.closed
				srv.mtx.Unlock()
				if !closed {
					srv.logger().WithError(err).Error("accept failed")
				}
				return
			}
			go srv.serveConn(nConn, config)
		}
	}()
}

func (srv *Server) serveConn(nConn net.Conn, config *ssh.ServerConfig) {
	defer nConn.Close()
	conn, newchans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		srv.logger().WithError(err).Info("ssh handshake failed")
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)
	for newch := range newchans {
		if newch.ChannelType() != "session" {
			newch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, reqs, err := newch.Accept()
		if err != nil {
			srv.logger().WithError(err).Error("accept channel failed")
			return
		}
		go srv.serveSession(ch, reqs)
	}
}

func (srv *Server) serveSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	// The request channel closes when the client closes the
	// session.
	defer cancel()
	didExec := false
	for req := range reqs {
		switch {
		case req.Type == "signal":
			cancel()
			req.Reply(true, nil)
		case didExec:
			req.Reply(false, nil)
		case req.Type == "exec":
			var execReq struct {
				Command string
			}
			ssh.Unmarshal(req.Payload, &execReq)
			req.Reply(true, nil)
			didExec = true
			go func() {
				var resp struct {
					Status uint32
				}
				resp.Status = srv.Exec(ctx, execReq.Command, ch, ch.Stderr())
				ch.SendRequest("exit-status", false, ssh.Marshal(&resp))
				ch.Close()
			}()
		default:
			req.Reply(false, nil)
		}
	}
}
