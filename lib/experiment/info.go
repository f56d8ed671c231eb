// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package experiment

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sybila/biodivine/lib/cmd"
)

// writeBuildInfo describes the launcher binary and the modules it
// was built from.
func writeBuildInfo(w io.Writer) error {
	fmt.Fprintf(w, "Launcher:\n\tVERSION: %s\n", cmd.Version.String())
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		_, err := fmt.Fprintf(w, "Modules: not available\n")
		return err
	}
	fmt.Fprintf(w, "Main module:\n\tPATH: %s\n\tVERSION: %s\n", bi.Main.Path, bi.Main.Version)
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision", "vcs.time", "vcs.modified":
			fmt.Fprintf(w, "\t%s: %s\n", setting.Key, setting.Value)
		}
	}
	fmt.Fprintf(w, "Dependencies:\n")
	for _, dep := range bi.Deps {
		fmt.Fprintf(w, "\t%s %s\n", dep.Path, dep.Version)
	}
	return nil
}

// writeEnvironmentInfo describes the host the experiment runs on.
func writeEnvironmentInfo(w io.Writer, now time.Time) error {
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		var err error
		hostname, err = os.Hostname()
		if err != nil {
			hostname = "Unknown"
		}
	}
	fmt.Fprintf(w, "Computer name: %s\n", hostname)
	fmt.Fprintf(w, "Operating system: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "System time: %s\n", now.Format(time.RFC1123))
	fmt.Fprintf(w, "Number of processors: %d\n", runtime.NumCPU())
	if mem, err := systemMemory(); err != nil {
		fmt.Fprintf(w, "Memory: Not available\n")
	} else {
		fmt.Fprintf(w, "Memory: physical %s / swap %s / free %s\n", humanize.IBytes(mem.Total), humanize.IBytes(mem.Swap), humanize.IBytes(mem.Free))
	}
	_, err := fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	return err
}

type memoryInfo struct {
	Total uint64
	Swap  uint64
	Free  uint64
}

// writeMetrics writes every metric in reg in the prometheus text
// format.
func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
