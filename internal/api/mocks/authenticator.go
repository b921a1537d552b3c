// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// MockAuthenticator is a mock of api.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

// NewMockAuthenticator creates a MockAuthenticator whose expectations are
// asserted when the test finishes.
func NewMockAuthenticator(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAuthenticator {
	m := &MockAuthenticator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Authenticate provides a mock function.
func (_m *MockAuthenticator) Authenticate(token string) (auth.Principal, error) {
	ret := _m.Called(token)
	return ret.Get(0).(auth.Principal), ret.Error(1)
}
