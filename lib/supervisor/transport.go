// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// A Transport turns a host name and a shell command line into a
// Process that runs the command on that host.
type Transport interface {
	Command(host, payload string) (Process, error)
}

// DefaultSSHCommand is the client program used by CommandTransport
// when none is configured.
var DefaultSSHCommand = []string{"ssh", "-o", "BatchMode=yes"}

// CommandTransport runs an ssh client program, passing the host and
// the payload as its last two arguments.
type CommandTransport struct {
	Args []string

	// (for testing) if non-nil, call stubCommand() instead of
	// exec.Command() when building client commands.
	stubCommand func(string, ...string) *exec.Cmd
}

// Command implements Transport. Killing the returned process kills
// the local client; the remote command is left to sshd's hangup
// handling.
func (t *CommandTransport) Command(host, payload string) (Process, error) {
	args := t.Args
	if len(args) == 0 {
		args = DefaultSSHCommand
	}
	args = append(append(append([]string(nil), args...), host), payload)
	command := exec.Command
	if t.stubCommand != nil {
		command = t.stubCommand
	}
	return NewProcess(command(args[0], args[1:]...)), nil
}

// LocalTransport runs payloads with the local shell, ignoring the
// host name. It suits clusters whose hosts are all "localhost".
type LocalTransport struct{}

// Command implements Transport.
func (LocalTransport) Command(host, payload string) (Process, error) {
	return NewProcess(exec.Command("/bin/sh", "-c", payload)), nil
}

// NewTransport returns the Transport selected by cfg.
func NewTransport(cfg biodivine.SSHConfig, logger logrus.FieldLogger) (Transport, error) {
	switch cfg.Transport {
	case "", "command":
		args := DefaultSSHCommand
		if cfg.Command != "" {
			var err error
			args, err = shlex.Split(cfg.Command)
			if err != nil {
				return nil, biodivine.ConfigErrorf("ssh command %q: %s", cfg.Command, err)
			}
			if len(args) == 0 {
				return nil, biodivine.ConfigErrorf("ssh command is empty")
			}
		}
		args = append([]string(nil), args...)
		if cfg.User != "" {
			args = append(args, "-l", cfg.User)
		}
		if cfg.Port != 0 {
			args = append(args, "-p", strconv.Itoa(cfg.Port))
		}
		return &CommandTransport{Args: args}, nil
	case "local":
		return LocalTransport{}, nil
	case "native":
		return newNativeTransport(cfg, logger)
	default:
		return nil, biodivine.ConfigErrorf("unknown ssh transport %q", cfg.Transport)
	}
}

func newNativeTransport(cfg biodivine.SSHConfig, logger logrus.FieldLogger) (*NativeTransport, error) {
	keyFile := cfg.PrivateKeyFile
	if keyFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, biodivine.ConfigErrorf("ssh privateKeyFile not set and no home directory: %s", err)
		}
		keyFile = filepath.Join(home, ".ssh", "id_rsa")
	}
	buf, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, biodivine.ConfigErrorf("ssh private key: %s", err)
	}
	signer, err := ssh.ParsePrivateKey(buf)
	if err != nil {
		return nil, biodivine.ConfigErrorf("ssh private key %s: %s", keyFile, err)
	}
	var hostKeyCallback ssh.HostKeyCallback
	if cfg.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, biodivine.ConfigErrorf("ssh known hosts: %s", err)
		}
	} else {
		logger.Warn("ssh knownHostsFile not set, remote host keys will not be verified")
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	user := cfg.User
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		return nil, biodivine.ConfigErrorf("ssh user not set and $USER is empty")
	}
	return &NativeTransport{
		User:            user,
		Port:            cfg.Port,
		Signers:         []ssh.Signer{signer},
		HostKeyCallback: hostKeyCallback,
		DialTimeout:     time.Minute,
	}, nil
}
