// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package biodivine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration is time.Duration but looks like "12s" in JSON, rather than
// a number of nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if data[0] == '"' {
		return d.Set(string(data[1 : len(data)-1]))
	}
	// Mimic error message returned by ParseDuration for a number
	// without units.
	return fmt.Errorf("missing unit in duration %q", data)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String returns a format similar to (time.Duration)String() but with
// "0m" and "0s" removed: e.g., "1h" instead of "1h0m0s".
func (d Duration) String() string {
	s := time.Duration(d).String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

// Duration returns a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Set implements the flag.Value interface and sets the duration value
// by using time.ParseDuration to parse the string.
func (d *Duration) Set(s string) error {
	dur, err := time.ParseDuration(s)
	*d = Duration(dur)
	return err
}
