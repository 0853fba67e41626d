// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "go.opentelemetry.io/ilstack/libpf"

import "go.opentelemetry.io/ilstack/libpf/hash"

// Address is a native code address. It is an opaque lookup key and is never
// dereferenced through this type.
type Address uintptr

// Hash32 returns a 32 bits hash of the address.
// It's main purpose is to be used as key for caching.
func (adr Address) Hash32() uint32 {
	return uint32(adr.Hash())
}

// Hash returns a 64 bits hash of the address.
func (adr Address) Hash() uint64 {
	return hash.Uint64(uint64(adr))
}
