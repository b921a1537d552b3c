// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GameAPI Contributors

// Package mocks provides testify mocks for the api package interfaces.
package mocks
