// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package dispatch

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/sdk/go/biodivine"
)

// stateTracker advances a task through its states, refusing
// transitions the state machine does not allow.
type stateTracker struct {
	logger logrus.FieldLogger
	state  *biodivine.TaskState
}

func (st stateTracker) to(next biodivine.TaskState) {
	if !st.state.CanTransitionTo(next) {
		panic(fmt.Sprintf("invalid task state transition %s -> %s", *st.state, next))
	}
	st.logger.WithFields(logrus.Fields{
		"State":    *st.state,
		"NewState": next,
	}).Debug("task state changed")
	*st.state = next
}

// lockedWriter serializes writes from the stdout drains of
// concurrently running workers.
type lockedWriter struct {
	mtx sync.Mutex
	w   io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mtx.Lock()
	defer lw.mtx.Unlock()
	return lw.w.Write(p)
}
