// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package invariant

import mock "github.com/stretchr/testify/mock"

type MockViolationExecutor struct {
	mock.Mock
}

func (_m *MockViolationExecutor) Exec(_a0 ViolationError) {
	_m.Called(_a0)
}

// NewMockViolationExecutor installs a mock executor for the duration of the
// test and restores the previous one on cleanup.
func NewMockViolationExecutor(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockViolationExecutor {
	m := &MockViolationExecutor{}
	m.Mock.Test(t)

	prev := SetViolationExecutor(m)
	t.Cleanup(func() {
		SetViolationExecutor(prev)
		m.AssertExpectations(t)
	})

	return m
}
