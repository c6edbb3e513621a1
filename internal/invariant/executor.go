// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package invariant

import (
	log "github.com/sirupsen/logrus"
)

type PanicViolationExecutor struct{}

var _ ViolationExecutor = (*PanicViolationExecutor)(nil)

func NewPanicViolationExecutor() *PanicViolationExecutor {
	return &PanicViolationExecutor{}
}

func (executor *PanicViolationExecutor) Exec(err ViolationError) {
	panic(err)
}

// LoggingViolationExecutor writes the violation to the logger before
// panicking, so the diagnostic survives even if the panic is swallowed.
type LoggingViolationExecutor struct {
	log *log.Entry
}

var _ ViolationExecutor = (*LoggingViolationExecutor)(nil)

// NewLoggingViolationExecutor uses the standard logrus logger when entry is nil.
func NewLoggingViolationExecutor(entry *log.Entry) *LoggingViolationExecutor {
	if entry == nil {
		entry = log.WithField("component", "invariant")
	}
	return &LoggingViolationExecutor{log: entry}
}

func (executor *LoggingViolationExecutor) Exec(err ViolationError) {
	executor.log.WithError(err).Error("runtime contract violated")
	panic(err)
}
