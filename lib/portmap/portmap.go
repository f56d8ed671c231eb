// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package portmap assigns ranks and port pairs to the hosts of a
// cluster launch, and writes the host table consumed by the workers'
// communication middleware.
package portmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sybila/biodivine/sdk/go/biodivine"
)

// ProtocolSwitchLimit is the middleware's eager/rendezvous protocol
// switch threshold, written verbatim on line 2 of the host table.
const ProtocolSwitchLimit = 131072

// ConfigFileName is the name of the host table inside a task's root
// directory.
const ConfigFileName = "mpj.config"

// ParseRange parses a port range like "5000-5010".
func ParseRange(portRange string) (low, high int, err error) {
	parts := strings.Split(portRange, "-")
	if len(parts) != 2 {
		return 0, 0, biodivine.ConfigErrorf("invalid port range %q", portRange)
	}
	low, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, biodivine.ConfigErrorf("invalid port range %q: %s", portRange, err)
	}
	high, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, biodivine.ConfigErrorf("invalid port range %q: %s", portRange, err)
	}
	if low < 1 || high > 65535 {
		return 0, 0, biodivine.ConfigErrorf("port range %q outside 1-65535", portRange)
	}
	return low, high, nil
}

// Allocate assigns rank i and ports (low+2i, low+2i+1) to the i-th
// host. It returns an error instead of wrapping around if the range
// runs out.
func Allocate(hosts []string, portRange string) ([]biodivine.RankAssignment, error) {
	if len(hosts) == 0 {
		return nil, biodivine.ConfigErrorf("empty host list")
	}
	low, high, err := ParseRange(portRange)
	if err != nil {
		return nil, err
	}
	ranks := make([]biodivine.RankAssignment, 0, len(hosts))
	for rank, host := range hosts {
		if host == "" {
			return nil, biodivine.ConfigErrorf("empty host name at rank %d", rank)
		}
		port := low + 2*rank
		if port+1 > high {
			return nil, biodivine.ConfigErrorf("port range %q exhausted at rank %d (%d hosts need %d ports)", portRange, rank, len(hosts), 2*len(hosts))
		}
		ranks = append(ranks, biodivine.RankAssignment{
			Rank:  rank,
			Host:  host,
			PortA: port,
			PortB: port + 1,
		})
	}
	return ranks, nil
}

// WriteConfig writes the host table: host count, protocol switch
// limit, then one "host@portA@portB@rank" line per rank.
func WriteConfig(w io.Writer, ranks []biodivine.RankAssignment) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n%d\n", len(ranks), ProtocolSwitchLimit)
	for _, r := range ranks {
		fmt.Fprintf(bw, "%s@%d@%d@%d\n", r.Host, r.PortA, r.PortB, r.Rank)
	}
	return bw.Flush()
}

// WriteConfigFile writes the host table to ConfigFileName in dir and
// returns its absolute path.
func WriteConfigFile(dir string, ranks []biodivine.RankAssignment) (string, error) {
	fnm, err := filepath.Abs(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return "", err
	}
	f, err := os.Create(fnm)
	if err != nil {
		return "", err
	}
	err = WriteConfig(f, ranks)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", fnm, err)
	}
	return fnm, nil
}
