// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package supervisor

import "strings"

// MergeEnv returns base with the KEY=VALUE entries in overrides
// replacing any existing entries with the same keys.
func MergeEnv(base, overrides []string) []string {
	env := append([]string(nil), overrides...)
	env = append(env, base...)
	return dedupEnv(env)
}

// Remove all but the first occurrence of each env var. Entries that
// are not of the form KEY=VALUE are dropped.
func dedupEnv(in []string) []string {
	saw := map[string]bool{}
	var out []string
	for _, kv := range in {
		if split := strings.Index(kv, "="); split < 1 {
			continue
		} else if saw[kv[:split]] {
			continue
		} else {
			saw[kv[:split]] = true
			out = append(out, kv)
		}
	}
	return out
}

// LookupEnv returns the value of key in env.
func LookupEnv(env []string, key string) (string, bool) {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}
