// Copyright (c) Relay Authors.
// Licensed under the MIT License.

// Package types provides core types used across the relay framework.
// This package has ZERO dependencies on other relay packages to avoid
// circular imports. All other packages should import types from here.
package types
