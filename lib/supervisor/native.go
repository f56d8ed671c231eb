// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package supervisor

import (
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// NativeTransport runs payloads over SSH sessions using an
// in-process client. One connection per host is kept open and
// shared by all sessions to that host.
type NativeTransport struct {
	// Default login name. A host given as "user@host" overrides
	// it.
	User string
	// Default port, 22 if zero. A host given as "host:port"
	// overrides it.
	Port            int
	Signers         []ssh.Signer
	HostKeyCallback ssh.HostKeyCallback
	DialTimeout     time.Duration

	mtx     sync.Mutex
	clients map[string]*cachedClient
}

type cachedClient struct {
	mtx    sync.Mutex
	client *ssh.Client
}

// Command implements Transport. The connection is made when the
// process is started.
func (t *NativeTransport) Command(host, payload string) (Process, error) {
	if t.HostKeyCallback == nil {
		return nil, errors.New("native ssh transport has no host key callback")
	}
	return &sshProcess{transport: t, host: host, payload: payload}, nil
}

// Close closes all cached connections.
func (t *NativeTransport) Close() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for _, cc := range t.clients {
		cc.mtx.Lock()
		if cc.client != nil {
			cc.client.Close()
			cc.client = nil
		}
		cc.mtx.Unlock()
	}
}

// Start a session on host, reconnecting once if the cached
// connection has gone stale.
func (t *NativeTransport) newSession(host string) (*ssh.Session, error) {
	client, err := t.client(host, false)
	if err == nil {
		if session, err := client.NewSession(); err == nil {
			return session, nil
		}
	}
	client, err = t.client(host, true)
	if err != nil {
		return nil, err
	}
	return client.NewSession()
}

func (t *NativeTransport) client(host string, reconnect bool) (*ssh.Client, error) {
	t.mtx.Lock()
	if t.clients == nil {
		t.clients = map[string]*cachedClient{}
	}
	cc, ok := t.clients[host]
	if !ok {
		cc = &cachedClient{}
		t.clients[host] = cc
	}
	t.mtx.Unlock()

	cc.mtx.Lock()
	defer cc.mtx.Unlock()
	if cc.client != nil {
		if !reconnect {
			return cc.client, nil
		}
		go cc.client.Close()
		cc.client = nil
	}
	user, addr := t.address(host)
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(t.Signers...)},
		HostKeyCallback: t.HostKeyCallback,
		Timeout:         t.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	cc.client = client
	return client, nil
}

func (t *NativeTransport) address(host string) (string, string) {
	user := t.User
	if i := strings.LastIndex(host, "@"); i >= 0 {
		user, host = host[:i], host[i+1:]
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return user, host
	}
	port := t.Port
	if port == 0 {
		port = 22
	}
	return user, net.JoinHostPort(host, strconv.Itoa(port))
}

type sshProcess struct {
	transport *NativeTransport
	host      string
	payload   string
	session   *ssh.Session
}

func (p *sshProcess) Start(stdout, stderr *os.File) error {
	session, err := p.transport.newSession(p.host)
	if err != nil {
		return err
	}
	session.Stdout = stdout
	session.Stderr = stderr
	if err := session.Start(p.payload); err != nil {
		session.Close()
		return err
	}
	p.session = session
	return nil
}

func (p *sshProcess) Wait() (int, error) {
	err := p.session.Wait()
	p.session.Close()
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, err
}

// Kill asks the server to deliver SIGKILL and then closes the
// session. Many servers ignore the signal request, but closing the
// channel hangs up the remote shell.
func (p *sshProcess) Kill() error {
	p.session.Signal(ssh.SIGKILL)
	err := p.session.Close()
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (p *sshProcess) String() string {
	return p.host + ": " + p.payload
}
