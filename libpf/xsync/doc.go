// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides thin wrappers around locking primitives that make the
// relationship between a lock and the data it protects explicit.
package xsync // import "go.opentelemetry.io/ilstack/libpf/xsync"
