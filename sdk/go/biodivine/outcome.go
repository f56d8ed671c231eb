// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package biodivine

import "fmt"

// Reason is a string explaining why a supervised process failed. The
// empty Reason means success.
type Reason string

const (
	ReasonNone        = Reason("")
	ReasonTimedOut    = Reason("TimedOut")
	ReasonNonZeroExit = Reason("NonZeroExit")
	ReasonCascaded    = Reason("Cascaded")
	ReasonLaunchError = Reason("LaunchError")
)

// Outcome is the result of supervising one process, or of a whole
// task.
type Outcome struct {
	Reason Reason
	// ExitCode is meaningful when Reason is ReasonNonZeroExit.
	ExitCode int
	// Message carries the OS error when Reason is
	// ReasonLaunchError.
	Message string
}

// Success is the zero Outcome.
var Success = Outcome{}

// Failed returns true if the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Reason != ReasonNone
}

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o.Reason {
	case ReasonNone:
		return "Success"
	case ReasonNonZeroExit:
		return fmt.Sprintf("Failure(NonZeroExit(%d))", o.ExitCode)
	case ReasonLaunchError:
		return fmt.Sprintf("Failure(LaunchError(%s))", o.Message)
	default:
		return fmt.Sprintf("Failure(%s)", o.Reason)
	}
}

// OutcomeFromExitCode returns Success if code is zero, otherwise a
// NonZeroExit failure.
func OutcomeFromExitCode(code int) Outcome {
	if code == 0 {
		return Success
	}
	return Outcome{Reason: ReasonNonZeroExit, ExitCode: code}
}

// TaskState is a step in the dispatch of one task.
type TaskState string

const (
	TaskStatePending    = TaskState("Pending")
	TaskStateDispatched = TaskState("Dispatched")
	TaskStateRunning    = TaskState("Running")
	TaskStateSucceeded  = TaskState("Succeeded")
	TaskStateFailed     = TaskState("Failed")
)

// Terminal returns true if no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// CanTransitionTo returns true if next is a valid successor of s.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	switch s {
	case TaskStatePending:
		return next == TaskStateDispatched || next == TaskStateFailed
	case TaskStateDispatched:
		return next == TaskStateRunning || next == TaskStateFailed
	case TaskStateRunning:
		return next == TaskStateSucceeded || next == TaskStateFailed
	default:
		return false
	}
}
