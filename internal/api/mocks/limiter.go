// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/6lebedev9/GameAPI/internal/ratelimit"
)

// MockLimiter is a mock of ratelimit.Limiter.
type MockLimiter struct {
	mock.Mock
}

// NewMockLimiter creates a MockLimiter whose expectations are asserted when
// the test finishes.
func NewMockLimiter(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockLimiter {
	m := &MockLimiter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Allow provides a mock function.
func (_m *MockLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	ret := _m.Called(ctx, key)
	return ret.Get(0).(ratelimit.Decision), ret.Error(1)
}
