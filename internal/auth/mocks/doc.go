// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package mocks provides testify mocks for the interfaces in package auth.
// Constructors register AssertExpectations with t.Cleanup.
package mocks
