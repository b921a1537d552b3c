// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// MockSessionIssuer is a mock of auth.SessionIssuer.
type MockSessionIssuer struct {
	mock.Mock
}

// NewMockSessionIssuer creates a MockSessionIssuer whose expectations are
// asserted when the test finishes.
func NewMockSessionIssuer(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionIssuer {
	m := &MockSessionIssuer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Issue provides a mock function.
func (_m *MockSessionIssuer) Issue(account *auth.Account) (string, time.Time, error) {
	ret := _m.Called(account)
	var r1 time.Time
	if v := ret.Get(1); v != nil {
		r1 = v.(time.Time)
	}
	return ret.String(0), r1, ret.Error(2)
}

var _ auth.SessionIssuer = (*MockSessionIssuer)(nil)
