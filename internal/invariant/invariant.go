// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package invariant reports broken runtime contracts.
//
// Exhausted pools, overflowing queues and double releases are sizing or
// design defects in a statically configured system, not conditions to
// recover from. Code that detects one calls Check or Violate; the installed
// ViolationExecutor decides how the process stops. The default executor logs
// the diagnostic and panics with a ViolationError.
package invariant

import (
	"fmt"
	"sync"
)

// Check reports a violation unless cond holds, and returns cond so callers
// can bail out when the installed executor lets execution continue.
func Check(cond bool, statement string) bool {
	if !cond {
		Violate(statement)
	}
	return cond
}

func Checkf(cond bool, format string, args ...any) bool {
	if !cond {
		Violatef(format, args...)
	}
	return cond
}

func Violate(statement string) {
	std.mtx.Lock()
	executor := std.executor
	std.mtx.Unlock()

	executor.Exec(ViolationError{Statement: statement})
}

func Violatef(format string, args ...any) {
	Violate(fmt.Sprintf(format, args...))
}

// SetViolationExecutor installs executor and returns the previous one.
func SetViolationExecutor(executor ViolationExecutor) ViolationExecutor {
	std.mtx.Lock()
	defer std.mtx.Unlock()

	prev := std.executor
	std.executor = executor
	return prev
}

var std = struct {
	executor ViolationExecutor
	mtx      sync.Mutex
}{
	executor: NewLoggingViolationExecutor(nil),
}
