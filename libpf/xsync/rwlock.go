// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync // import "go.opentelemetry.io/ilstack/libpf/xsync"

import "sync"

// RWMutex is a sync.RWMutex that owns the data it protects. The data can only
// be reached through RLock or WLock, so it can not be touched without holding
// the lock.
//
//	type registry struct {
//		regions xsync.RWMutex[[]region]
//	}
//
//	func (r *registry) count() int {
//		regions := r.regions.RLock()
//		defer r.regions.RUnlock(&regions)
//		return len(*regions)
//	}
type RWMutex[T any] struct {
	guarded T
	mutex   sync.RWMutex
}

// NewRWMutex creates a new read-write mutex guarding the given value.
func NewRWMutex[T any](guarded T) RWMutex[T] {
	return RWMutex[T]{
		guarded: guarded,
	}
}

// RLock locks the mutex for reading and returns a pointer to the protected data.
//
// The caller must not write through the pointer, and must not keep it beyond
// the matching RUnlock.
func (mtx *RWMutex[T]) RLock() *T {
	mtx.mutex.RLock()
	return &mtx.guarded
}

// RUnlock releases a read lock and clears the pointer obtained from RLock.
func (mtx *RWMutex[T]) RUnlock(ref **T) {
	*ref = nil
	mtx.mutex.RUnlock()
}

// WLock locks the mutex for writing and returns a pointer to the protected data.
//
// The caller must not keep the pointer beyond the matching WUnlock.
func (mtx *RWMutex[T]) WLock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// WUnlock releases the write lock and clears the pointer obtained from WLock.
func (mtx *RWMutex[T]) WUnlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}
