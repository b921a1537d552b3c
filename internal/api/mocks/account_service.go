// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// MockAccountService is a mock of api.AccountService.
type MockAccountService struct {
	mock.Mock
}

// NewMockAccountService creates a MockAccountService whose expectations are
// asserted when the test finishes.
func NewMockAccountService(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAccountService {
	m := &MockAccountService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (_m *MockAccountService) result(ret mock.Arguments) (*auth.Result, error) {
	var r0 *auth.Result
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.Result)
	}
	return r0, ret.Error(1)
}

// Register provides a mock function.
func (_m *MockAccountService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
	return _m.result(_m.Called(ctx, in))
}

// Login provides a mock function.
func (_m *MockAccountService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	return _m.result(_m.Called(ctx, email, password))
}

// UpdateEmail provides a mock function.
func (_m *MockAccountService) UpdateEmail(ctx context.Context, principal auth.Principal, tokenValue, newEmail string) (*auth.Result, error) {
	return _m.result(_m.Called(ctx, principal, tokenValue, newEmail))
}

// UpdatePassword provides a mock function.
func (_m *MockAccountService) UpdatePassword(ctx context.Context, principal auth.Principal, tokenValue, newPassword string) (*auth.Result, error) {
	return _m.result(_m.Called(ctx, principal, tokenValue, newPassword))
}
