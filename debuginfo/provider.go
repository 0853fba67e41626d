// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package debuginfo resolves IL offsets from the JIT debug info the CoreCLR
// runtime keeps for every method body it compiles.
//
// The Provider tracks the native code regions of JIT compiled methods and the
// address of each region's debug info. Debug info is read through a
// RemoteMemory on first use and the decoded boundary table is kept in an LRU.
package debuginfo // import "go.opentelemetry.io/ilstack/debuginfo"

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	lru "github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ilstack/config"
	"go.opentelemetry.io/ilstack/iloffset"
	"go.opentelemetry.io/ilstack/libpf"
	"go.opentelemetry.io/ilstack/libpf/xsync"
	"go.opentelemetry.io/ilstack/metrics"
	"go.opentelemetry.io/ilstack/remotememory"
	"go.opentelemetry.io/ilstack/stacktrace"
	"go.opentelemetry.io/ilstack/successfailurecounter"
)

// readAheadSize is the read ahead buffer size used for debug info.
const readAheadSize = 1024

var errNoDebugInfo = errors.New("method has no debug info")

// Region is the native code of one JIT compiled method body.
type Region struct {
	Method *libpf.Method
	Start  libpf.Address
	Size   uint32
	// DebugInfo is the address of the method's debug info, 0 if it has none.
	DebugInfo libpf.Address
}

func (r *Region) end() libpf.Address {
	return r.Start + libpf.Address(r.Size)
}

// Provider implements iloffset.SymbolProvider and stacktrace.CodeMap on top of
// the runtime's JIT debug info.
type Provider struct {
	rm     remotememory.RemoteMemory
	layout Layout

	// regions is sorted by start address and never overlapping.
	regions xsync.RWMutex[[]Region]

	// bounds caches decoded boundary tables by region start.
	bounds *lru.SyncedLRU[libpf.Address, []Bound]

	decodeSuccess atomic.Uint64
	decodeFailure atomic.Uint64
}

var _ iloffset.SymbolProvider = &Provider{}
var _ stacktrace.CodeMap = &Provider{}

// NewProvider returns a Provider reading debug info from rm.
func NewProvider(rm remotememory.RemoteMemory, cfg *config.Config) (*Provider, error) {
	if !rm.Valid() {
		return nil, errors.New("remote memory is not valid")
	}
	layout, err := LayoutForRuntime(cfg.RuntimeMajorVersion)
	if err != nil {
		return nil, err
	}
	bounds, err := lru.NewSynced[libpf.Address, []Bound](cfg.DebugInfoCacheSize,
		libpf.Address.Hash32)
	if err != nil {
		return nil, fmt.Errorf("failed to create bounds cache: %w", err)
	}
	return &Provider{
		rm:      rm,
		layout:  layout,
		regions: xsync.NewRWMutex([]Region{}),
		bounds:  bounds,
	}, nil
}

func compareRegion(r Region, addr libpf.Address) int {
	if addr < r.Start {
		return 1
	}
	if addr >= r.end() {
		return -1
	}
	return 0
}

// AddRegion registers the native code of a method body.
func (p *Provider) AddRegion(region Region) error {
	if region.Method == nil || region.Method.Handle == 0 {
		return errors.New("region without method")
	}
	if region.Size == 0 {
		return fmt.Errorf("empty region at 0x%x", region.Start)
	}

	regions := p.regions.WLock()
	defer p.regions.WUnlock(&regions)

	idx, found := slices.BinarySearchFunc(*regions, region.Start, compareRegion)
	if found || (idx < len(*regions) && (*regions)[idx].Start < region.end()) {
		return fmt.Errorf("region 0x%x-0x%x of %v overlaps existing code",
			region.Start, region.end(), region.Method)
	}
	*regions = slices.Insert(*regions, idx, region)
	p.bounds.Remove(region.Start)
	return nil
}

// RemoveMethod drops all regions of a method, typically after its collectible
// loader context was unloaded. It returns the number of regions removed.
func (p *Provider) RemoveMethod(handle libpf.MethodHandle) int {
	regions := p.regions.WLock()
	defer p.regions.WUnlock(&regions)

	removed := 0
	*regions = slices.DeleteFunc(*regions, func(r Region) bool {
		if r.Method.Handle != handle {
			return false
		}
		p.bounds.Remove(r.Start)
		removed++
		return true
	})
	return removed
}

func (p *Provider) findRegion(addr libpf.Address) (Region, bool) {
	regions := p.regions.RLock()
	defer p.regions.RUnlock(&regions)

	idx, ok := slices.BinarySearchFunc(*regions, addr, compareRegion)
	if !ok {
		return Region{}, false
	}
	return (*regions)[idx], true
}

// NativeOffset returns the offset of addr from the start of its method body.
func (p *Provider) NativeOffset(addr libpf.Address) (uint32, bool) {
	region, ok := p.findRegion(addr)
	if !ok {
		return 0, false
	}
	return uint32(addr - region.Start), true
}

// ResolveILOffset maps the native offset of a frame of method to its IL offset.
func (p *Provider) ResolveILOffset(method *libpf.Method, addr libpf.Address,
	nativeOffset uint32) (uint32, bool) {
	region, ok := p.findRegion(addr)
	if !ok && addr != 0 {
		// A return address of a call ending the method body points right
		// past it.
		region, ok = p.findRegion(addr - 1)
	}
	if !ok {
		log.Debugf("No code region for %v at 0x%x", method, addr)
		return 0, false
	}
	if region.Method.Handle != method.Handle {
		log.Debugf("Address 0x%x belongs to %v, not %v", addr, region.Method, method)
		return 0, false
	}

	bounds, err := p.getBounds(&region)
	if err != nil {
		log.Debugf("Failed to get bounds of %v: %v", method, err)
		return 0, false
	}
	return mapNativeOffset(bounds, nativeOffset)
}

func (p *Provider) getBounds(region *Region) ([]Bound, error) {
	if bounds, ok := p.bounds.Get(region.Start); ok {
		return bounds, nil
	}
	if region.DebugInfo == 0 {
		return nil, errNoDebugInfo
	}

	sfc := successfailurecounter.New(&p.decodeSuccess, &p.decodeFailure)
	bounds, err := p.readBounds(region)
	if sfc.ReportError(err) != nil {
		return nil, err
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		for i, b := range bounds {
			log.Debugf(" %3d, native %3d -> IL %#03x, sourceFlags %#x",
				i, b.NativeOffset, b.ILOffset, b.SourceFlags)
		}
	}
	p.bounds.Add(region.Start, bounds)
	return bounds, nil
}

func (p *Provider) readBounds(region *Region) ([]Bound, error) {
	blob, err := readBoundsBlob(newCachingReader(p.rm, int64(region.DebugInfo),
		readAheadSize), p.layout)
	if err != nil {
		return nil, err
	}
	return decodeBounds(blob)
}

// GetAndResetMetrics returns the provider counters accumulated since the last call.
func (p *Provider) GetAndResetMetrics() []metrics.Metric {
	boundsStats := p.bounds.ResetMetrics()

	return []metrics.Metric{
		{
			ID:    metrics.IDDebugInfoDecodeSuccess,
			Value: metrics.MetricValue(p.decodeSuccess.Swap(0)),
		},
		{
			ID:    metrics.IDDebugInfoDecodeFailure,
			Value: metrics.MetricValue(p.decodeFailure.Swap(0)),
		},
		{
			ID:    metrics.IDDebugInfoBoundsHit,
			Value: metrics.MetricValue(boundsStats.Hits),
		},
		{
			ID:    metrics.IDDebugInfoBoundsMiss,
			Value: metrics.MetricValue(boundsStats.Misses),
		},
	}
}
