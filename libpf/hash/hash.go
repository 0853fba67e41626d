// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hash provides the integer finalizers used to spread keys over
// fixed-size tables. Both are cheap, allocation free and safe to call from
// any context.
package hash // import "go.opentelemetry.io/ilstack/libpf/hash"

// Uint32 scrambles a 32-bit value with the Murmur3 finalizer.
// https://en.wikipedia.org/wiki/MurmurHash#Algorithm
func Uint32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

// Uint64 scrambles a 64-bit value with the Murmur3 64-bit finalizer.
// https://lemire.me/blog/2018/08/15/fast-strongly-universal-64-bit-hashing-everywhere/
func Uint64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
