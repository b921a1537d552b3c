// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/6lebedev9/GameAPI/internal/auth"
)

// MockAccountRepository is a mock of auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a MockAccountRepository whose expectations
// are asserted when the test finishes.
func NewMockAccountRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (_m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	ret := _m.Called(ctx, account)
	return ret.Error(0)
}

// GetByID provides a mock function.
func (_m *MockAccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	ret := _m.Called(ctx, id)
	var r0 *auth.Account
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.Account)
	}
	return r0, ret.Error(1)
}

// GetByEmail provides a mock function.
func (_m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	ret := _m.Called(ctx, email)
	var r0 *auth.Account
	if v := ret.Get(0); v != nil {
		r0 = v.(*auth.Account)
	}
	return r0, ret.Error(1)
}

// SaveLogin provides a mock function.
func (_m *MockAccountRepository) SaveLogin(ctx context.Context, account *auth.Account, verifiedHash string) error {
	ret := _m.Called(ctx, account, verifiedHash)
	return ret.Error(0)
}

// SaveCredentials provides a mock function.
func (_m *MockAccountRepository) SaveCredentials(ctx context.Context, account *auth.Account) error {
	ret := _m.Called(ctx, account)
	return ret.Error(0)
}

// RecordLoginFailure provides a mock function. The first return value may be
// a func(ulid.ULID, auth.FailureTransition) (int, *time.Time, error) to
// compute results from the arguments.
func (_m *MockAccountRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, transition auth.FailureTransition) (int, *time.Time, error) {
	ret := _m.Called(ctx, id, transition)
	if rf, ok := ret.Get(0).(func(ulid.ULID, auth.FailureTransition) (int, *time.Time, error)); ok {
		return rf(id, transition)
	}
	var r1 *time.Time
	if v := ret.Get(1); v != nil {
		r1 = v.(*time.Time)
	}
	return ret.Int(0), r1, ret.Error(2)
}

var _ auth.AccountRepository = (*MockAccountRepository)(nil)
