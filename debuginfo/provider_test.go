// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debuginfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/ilstack/config"
	"go.opentelemetry.io/ilstack/iloffset"
	"go.opentelemetry.io/ilstack/iloffsetcache"
	"go.opentelemetry.io/ilstack/libpf"
	"go.opentelemetry.io/ilstack/metrics"
	"go.opentelemetry.io/ilstack/remotememory"
	"go.opentelemetry.io/ilstack/stacktrace"
)

var (
	mainMethod = &libpf.Method{Handle: 0x7f5a10, Name: "Program.Main"}
	helper     = &libpf.Method{Handle: 0x7f5a20, Name: "Program.Helper"}
	lcgMethod  = &libpf.Method{Handle: 0x7f5a30, Classification: libpf.MethodDynamic}
)

const (
	mainCode   libpf.Address = 0x7f0010001000
	helperCode libpf.Address = 0x7f0010001100
	lcgCode    libpf.Address = 0x7f0010002000

	mainInfo    libpf.Address = 0x7f0020000000
	helperInfo  libpf.Address = 0x7f0020001000
	corruptInfo libpf.Address = 0x7f0020002000
)

var helperBounds = []Bound{
	{NativeOffset: 0x00, ILOffset: ILProlog},
	{NativeOffset: 0x04, ILOffset: 0x00, SourceFlags: SourceStackEmpty},
	{NativeOffset: 0x0a, ILOffset: 0x02, SourceFlags: SourceCallInstruction},
	{NativeOffset: 0x10, ILOffset: 0x08, SourceFlags: SourceStackEmpty},
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()

	cfg := config.Default()
	layout, err := LayoutForRuntime(cfg.RuntimeMajorVersion)
	require.NoError(t, err)

	im := &remotememory.Image{}
	mainDI := DebugInfo{Bounds: mainBounds, HasPatchpoint: true, PatchpointLocals: 2}
	require.NoError(t, im.Map(mainInfo, mainDI.Encode(layout)))
	require.NoError(t, im.Map(helperInfo, EncodeDebugInfo(helperBounds)))
	require.NoError(t, im.Map(corruptInfo, []byte{0xff, 0xff}))

	p, err := NewProvider(im.RemoteMemory(), cfg)
	require.NoError(t, err)

	require.NoError(t, p.AddRegion(Region{
		Method: mainMethod, Start: mainCode, Size: 0x40, DebugInfo: mainInfo}))
	require.NoError(t, p.AddRegion(Region{
		Method: helper, Start: helperCode, Size: 0x20, DebugInfo: helperInfo}))
	require.NoError(t, p.AddRegion(Region{
		Method: lcgMethod, Start: lcgCode, Size: 0x10, DebugInfo: corruptInfo}))
	return p
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(remotememory.RemoteMemory{}, config.Default())
	require.Error(t, err)

	cfg := config.Default()
	cfg.RuntimeMajorVersion = 4
	_, err = NewProvider((&remotememory.Image{}).RemoteMemory(), cfg)
	require.Error(t, err)
}

func TestAddRegion(t *testing.T) {
	p := newTestProvider(t)

	tests := map[string]Region{
		"no method":        {Start: 0x1000, Size: 0x10},
		"zero handle":      {Method: &libpf.Method{}, Start: 0x1000, Size: 0x10},
		"empty":            {Method: helper, Start: 0x1000},
		"same start":       {Method: helper, Start: mainCode, Size: 0x10},
		"inside":           {Method: helper, Start: mainCode + 0x10, Size: 0x10},
		"overlapping next": {Method: helper, Start: mainCode - 0x8, Size: 0x10},
	}
	for name, region := range tests {
		t.Run(name, func(t *testing.T) {
			require.Error(t, p.AddRegion(region))
		})
	}

	// Adjacent regions are fine.
	require.NoError(t, p.AddRegion(Region{Method: helper, Start: mainCode - 0x10, Size: 0x10}))
	require.NoError(t, p.AddRegion(Region{Method: helper, Start: mainCode + 0x40, Size: 0x10}))
}

func TestNativeOffset(t *testing.T) {
	p := newTestProvider(t)

	offset, ok := p.NativeOffset(mainCode + 0x12)
	require.True(t, ok)
	assert.Equal(t, uint32(0x12), offset)

	offset, ok = p.NativeOffset(helperCode)
	require.True(t, ok)
	assert.Zero(t, offset)

	_, ok = p.NativeOffset(mainCode + 0x40)
	assert.False(t, ok)
	_, ok = p.NativeOffset(0x1000)
	assert.False(t, ok)
}

func TestResolveILOffset(t *testing.T) {
	tests := map[string]struct {
		method       *libpf.Method
		addr         libpf.Address
		nativeOffset uint32
		expected     uint32
		found        bool
	}{
		"statement": {
			method:       mainMethod,
			addr:         mainCode + 0x13,
			nativeOffset: 0x12,
			expected:     0x06,
			found:        true,
		},
		"prolog": {
			method:       mainMethod,
			addr:         mainCode + 0x02,
			nativeOffset: 0x02,
		},
		"helper call": {
			method:       helper,
			addr:         helperCode + 0x0b,
			nativeOffset: 0x0a,
			expected:     0x02,
			found:        true,
		},
		"return address past the end": {
			method:       helper,
			addr:         helperCode + 0x20,
			nativeOffset: 0x1f,
			expected:     0x08,
			found:        true,
		},
		"other method's code": {
			method:       helper,
			addr:         mainCode + 0x13,
			nativeOffset: 0x12,
		},
		"unknown code": {
			method:       mainMethod,
			addr:         0x1000,
			nativeOffset: 0x12,
		},
		"corrupt debug info": {
			method:       lcgMethod,
			addr:         lcgCode + 0x4,
			nativeOffset: 0x4,
		},
	}

	p := newTestProvider(t)
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			il, ok := p.ResolveILOffset(tc.method, tc.addr, tc.nativeOffset)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, il)
		})
	}
}

func TestProviderMetrics(t *testing.T) {
	p := newTestProvider(t)
	p.GetAndResetMetrics()

	for range 3 {
		_, ok := p.ResolveILOffset(mainMethod, mainCode+0x13, 0x12)
		require.True(t, ok)
	}
	_, ok := p.ResolveILOffset(lcgMethod, lcgCode+0x4, 0x4)
	require.False(t, ok)

	m := metrics.Summary{}
	m.Add(p.GetAndResetMetrics())
	assert.Equal(t, metrics.MetricValue(1), m[metrics.IDDebugInfoDecodeSuccess])
	assert.Equal(t, metrics.MetricValue(1), m[metrics.IDDebugInfoDecodeFailure])
	assert.Equal(t, metrics.MetricValue(2), m[metrics.IDDebugInfoBoundsHit])
	assert.Equal(t, metrics.MetricValue(2), m[metrics.IDDebugInfoBoundsMiss])
}

func TestRemoveMethod(t *testing.T) {
	p := newTestProvider(t)
	_, ok := p.ResolveILOffset(lcgMethod, lcgCode+0x4, 0x4)
	require.False(t, ok)

	assert.Equal(t, 1, p.RemoveMethod(lcgMethod.Handle))
	assert.Zero(t, p.RemoveMethod(lcgMethod.Handle))
	_, ok = p.NativeOffset(lcgCode)
	assert.False(t, ok)

	// The address range can be reused by newly generated code.
	regenerated := &libpf.Method{Handle: 0x7f5a40, Classification: libpf.MethodDynamic}
	require.NoError(t, p.AddRegion(Region{
		Method: regenerated, Start: lcgCode, Size: 0x20, DebugInfo: helperInfo}))
	il, ok := p.ResolveILOffset(regenerated, lcgCode+0x0b, 0x0a)
	require.True(t, ok)
	assert.Equal(t, uint32(0x02), il)
}

// TestCapture runs both capture phases against the provider through the
// resolver and the offset cache.
func TestCapture(t *testing.T) {
	p := newTestProvider(t)
	regenerated := &libpf.Method{Handle: 0x7f5a40, Classification: libpf.MethodDynamic}
	p.RemoveMethod(lcgMethod.Handle)
	require.NoError(t, p.AddRegion(Region{
		Method: regenerated, Start: lcgCode, Size: 0x20, DebugInfo: helperInfo}))

	walk := []stacktrace.RawFrame{
		{Method: helper, Address: helperCode + 0x0a, NativeOffset: 0x0a,
			Flags: stacktrace.FlagIPAdjusted},
		{Method: regenerated, Address: lcgCode + 0x11, NativeOffset: 0x11},
		{Method: mainMethod, Address: mainCode + 0x13, NativeOffset: 0x13},
		{Method: mainMethod, Address: mainCode + 0x31, NativeOffset: 0x31},
	}
	unwinder := stacktrace.UnwinderFunc(func(visit stacktrace.FrameVisitor) {
		for _, f := range walk {
			if visit(f) == stacktrace.WalkStop {
				return
			}
		}
	})

	cache := iloffsetcache.New(config.DefaultNativeToILCacheSize)
	collector := stacktrace.NewCollector(iloffset.NewResolver(cache, p),
		stacktrace.WithCodeMap(p))

	trace, err := collector.Capture(unwinder, 0)
	require.NoError(t, err)
	ilOffsets := make([]uint32, 0, len(trace.Frames))
	for _, f := range trace.Frames {
		ilOffsets = append(ilOffsets, f.ILOffset)
	}
	assert.Equal(t, []uint32{0x02, 0x08, 0x06, 0x1a}, ilOffsets)
	assert.Equal(t, []*libpf.Method{regenerated}, trace.DynamicMethods)

	il, ok := cache.Lookup(helperCode+0x0a, false)
	require.True(t, ok)
	assert.Equal(t, uint32(0x02), il)
	il, ok = cache.Lookup(mainCode+0x13, true)
	require.True(t, ok)
	assert.Equal(t, uint32(0x06), il)
	_, ok = cache.Lookup(lcgCode+0x11, true)
	assert.False(t, ok)

	// Rethrow: the persisted frames are resolved again, now partly from cache.
	et := &stacktrace.ExceptionTrace{}
	et.AppendTrace(trace)
	et.MarkForeignBoundary()
	require.NoError(t, et.Append(stacktrace.PersistedFrame{Method: mainMethod}))

	rethrown, err := collector.CaptureFromException(et)
	require.NoError(t, err)
	require.Len(t, rethrown.Frames, 5)
	assert.Equal(t, []bool{false, false, false, true, false}, rethrown.ForeignBoundary)
	for i := range 4 {
		assert.Equal(t, trace.Frames[i].ILOffset, rethrown.Frames[i].ILOffset)
		assert.Equal(t, trace.Frames[i].NativeOffset, rethrown.Frames[i].NativeOffset)
	}
	assert.Equal(t, iloffset.UnknownILOffset, rethrown.Frames[4].ILOffset)
}
