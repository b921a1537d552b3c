// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// TxFunc is the callback type passed to auth.Transactor.InTransaction.
type TxFunc = func(ctx context.Context) error

// MockTransactor is a mock of auth.Transactor.
type MockTransactor struct {
	mock.Mock
}

// NewMockTransactor creates a MockTransactor whose expectations are asserted
// when the test finishes.
func NewMockTransactor(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTransactor {
	m := &MockTransactor{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// InTransaction provides a mock function. When the configured return value is
// a func(context.Context, TxFunc) error it is invoked with the arguments.
func (_m *MockTransactor) InTransaction(ctx context.Context, fn TxFunc) error {
	ret := _m.Called(ctx, fn)
	if rf, ok := ret.Get(0).(func(context.Context, TxFunc) error); ok {
		return rf(ctx, fn)
	}
	return ret.Error(0)
}

// ExpectPassthrough expects one InTransaction call that runs fn directly.
func (_m *MockTransactor) ExpectPassthrough() *mock.Call {
	return _m.On("InTransaction", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, fn TxFunc) error { return fn(ctx) }).
		Once()
}

var _ auth.Transactor = (*MockTransactor)(nil)
