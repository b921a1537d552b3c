// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// MockTokenRepository is a mock of auth.TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

// NewMockTokenRepository creates a MockTokenRepository whose expectations are
// asserted when the test finishes.
func NewMockTokenRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenRepository {
	m := &MockTokenRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Reserve provides a mock function.
func (_m *MockTokenRepository) Reserve(ctx context.Context, value string, bindingID *int64) (*auth.VerificationToken, error) {
	ret := _m.Called(ctx, value, bindingID)
	var r0 *auth.VerificationToken
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.VerificationToken)
	}
	return r0, ret.Error(1)
}

// Issue provides a mock function.
func (_m *MockTokenRepository) Issue(ctx context.Context, token *auth.VerificationToken) error {
	ret := _m.Called(ctx, token)
	return ret.Error(0)
}

var _ auth.TokenRepository = (*MockTokenRepository)(nil)
