// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package supervisor

import "sync/atomic"

// A CancellationToken is shared by the supervisors of one cluster
// launch. The first rank whose worker fails cancels it; the others
// notice on their next poll and kill their own workers.
//
// The zero value is an uncancelled token. A CancellationToken must
// not be copied after first use.
type CancellationToken struct {
	// 0 while uncancelled, otherwise 1 + the triggering rank.
	state atomic.Int64
}

// Cancel marks the token cancelled on behalf of rank. It returns true
// if this call did so, false if the token was already cancelled.
func (t *CancellationToken) Cancel(rank int) bool {
	return t.state.CompareAndSwap(0, int64(rank)+1)
}

// Cancelled returns true if Cancel has been called.
func (t *CancellationToken) Cancelled() bool {
	return t.state.Load() != 0
}

// Trigger returns the rank that cancelled the token, if any.
func (t *CancellationToken) Trigger() (rank int, ok bool) {
	v := t.state.Load()
	return int(v - 1), v != 0
}
