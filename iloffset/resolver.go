// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package iloffset resolves the IL offset of a single stack frame, consulting
// the native to IL offset cache before asking a symbol provider.
package iloffset // import "go.opentelemetry.io/ilstack/iloffset"

import (
	"sync/atomic"

	"go.opentelemetry.io/ilstack/iloffsetcache"
	"go.opentelemetry.io/ilstack/libpf"
	"go.opentelemetry.io/ilstack/metrics"
)

const (
	// UnknownILOffset is reported for frames whose IL offset could not be resolved.
	UnknownILOffset uint32 = 0xFFFFFFFF

	// ControlPCAdjustOffset is subtracted from the native offset of a return
	// address so that it falls inside the call instruction.
	ControlPCAdjustOffset uint32 = 1
)

// SymbolProvider maps a native offset within a method's code to an IL offset.
// Implementations may block.
type SymbolProvider interface {
	ResolveILOffset(method *libpf.Method, addr libpf.Address, nativeOffset uint32) (uint32, bool)
}

// ProviderFunc adapts a function to the SymbolProvider interface.
type ProviderFunc func(method *libpf.Method, addr libpf.Address, nativeOffset uint32) (uint32, bool)

func (f ProviderFunc) ResolveILOffset(method *libpf.Method, addr libpf.Address,
	nativeOffset uint32) (uint32, bool) {
	return f(method, addr, nativeOffset)
}

// Resolver resolves IL offsets of frames. It is safe for concurrent use.
type Resolver struct {
	cache    *iloffsetcache.Cache
	provider SymbolProvider

	successCount atomic.Uint64
	failCount    atomic.Uint64
}

// NewResolver returns a Resolver using the given cache and provider. A nil
// cache selects the process wide cache. A nil provider makes every cache miss
// resolve to UnknownILOffset.
func NewResolver(cache *iloffsetcache.Cache, provider SymbolProvider) *Resolver {
	if cache == nil {
		cache = iloffsetcache.Default()
	}
	return &Resolver{
		cache:    cache,
		provider: provider,
	}
}

// Cache returns the cache used by the resolver.
func (r *Resolver) Cache() *iloffsetcache.Cache {
	return r.cache
}

// Resolve returns the IL offset of a frame of method executing at addr, which
// is nativeOffset bytes into the method's code. alreadyAdjusted is set when
// addr already points at the faulting or calling instruction instead of being
// a return address.
func (r *Resolver) Resolve(method *libpf.Method, addr libpf.Address, nativeOffset uint32,
	alreadyAdjusted bool) uint32 {
	ilOffset, ok := r.resolve(method, addr, nativeOffset, alreadyAdjusted)
	if !ok {
		r.failCount.Add(1)
		return UnknownILOffset
	}
	r.successCount.Add(1)
	return ilOffset
}

func (r *Resolver) resolve(method *libpf.Method, addr libpf.Address, nativeOffset uint32,
	alreadyAdjusted bool) (uint32, bool) {
	adjust := iloffsetcache.AdjustFlag(alreadyAdjusted, nativeOffset)

	// Frames without native code, e.g. rebuilt from a foreign trace.
	if addr == 0 {
		return 0, false
	}
	if ilOffset, ok := r.cache.Lookup(addr, adjust); ok {
		return ilOffset, true
	}
	if r.provider == nil {
		return 0, false
	}

	if adjust {
		nativeOffset -= ControlPCAdjustOffset
	}
	ilOffset, ok := r.provider.ResolveILOffset(method, addr, nativeOffset)
	if !ok {
		return 0, false
	}
	if method.Cacheable() {
		r.cache.Insert(addr, adjust, ilOffset)
	}
	return ilOffset, true
}

// GetAndResetMetrics returns the resolver counters accumulated since the last call.
func (r *Resolver) GetAndResetMetrics() []metrics.Metric {
	return []metrics.Metric{
		{
			ID:    metrics.IDILOffsetResolveSuccess,
			Value: metrics.MetricValue(r.successCount.Swap(0)),
		},
		{
			ID:    metrics.IDILOffsetResolveFailure,
			Value: metrics.MetricValue(r.failCount.Swap(0)),
		},
	}
}
