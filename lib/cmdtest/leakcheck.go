// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmdtest provides tools for testing command line tools.
package cmdtest

import (
	"io"
	"os"

	check "gopkg.in/check.v1"
)

// LeakCheck tests for output being leaked to os.Stdout and os.Stderr
// that should be sent elsewhere (e.g., the stdout and stderr streams
// passed to a cmd.Handler, or a supervisor's Stdout writer).
//
// It redirects os.Stdout and os.Stderr to tempfiles, and returns a
// func, which the caller is expected to defer, that restores os.* and
// checks that the tempfiles are empty.
//
// Example:
//
//	func (s *Suite) TestSomething(c *check.C) {
//		defer cmdtest.LeakCheck(c)()
//		// ... run a worker whose output must reach a buffer
//	}
func LeakCheck(c *check.C) func() {
	tmpfiles := map[string]*os.File{"stdout": nil, "stderr": nil}
	for name := range tmpfiles {
		f, err := os.CreateTemp(c.MkDir(), name)
		c.Assert(err, check.IsNil)
		tmpfiles[name] = f
	}

	stdout, stderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = tmpfiles["stdout"], tmpfiles["stderr"]
	return func() {
		os.Stdout, os.Stderr = stdout, stderr

		for name, tmpfile := range tmpfiles {
			c.Logf("checking %s", name)
			_, err := tmpfile.Seek(0, io.SeekStart)
			c.Assert(err, check.IsNil)
			leaked, err := io.ReadAll(tmpfile)
			c.Assert(err, check.IsNil)
			c.Check(string(leaked), check.Equals, "")
			tmpfile.Close()
		}
	}
}
