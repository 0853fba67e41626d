// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stacktrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/ilstack/libpf"
)

func TestFrameBufferInitialCapacity(t *testing.T) {
	tests := map[string]struct {
		requested int
		limit     int
		expected  int
	}{
		"unbounded":           {requested: 0, expected: 20},
		"small request":       {requested: 5, expected: 5},
		"large request":       {requested: 100, expected: 20},
		"limit below default": {requested: 0, limit: 8, expected: 8},
		"limit above request": {requested: 3, limit: 8, expected: 3},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fb := newFrameBuffer(tc.requested, tc.limit)
			assert.Equal(t, tc.expected, cap(fb.frames))
			assert.Zero(t, fb.len())
		})
	}
}

func TestFrameBufferGrowth(t *testing.T) {
	method := &libpf.Method{Handle: 1}
	fb := newFrameBuffer(2, 0)
	for i := range 9 {
		require.True(t, fb.append(RawFrame{Method: method, NativeOffset: uint32(i)}))
	}
	assert.Equal(t, 9, fb.len())
	assert.Equal(t, 16, cap(fb.frames))
	assert.Equal(t, 3, fb.grows)
	for i, f := range fb.frames {
		assert.Equal(t, uint32(i), f.NativeOffset)
	}
}

func TestFrameBufferLimit(t *testing.T) {
	method := &libpf.Method{Handle: 1}
	fb := newFrameBuffer(0, 25)
	for i := range 25 {
		require.True(t, fb.append(RawFrame{Method: method, NativeOffset: uint32(i)}))
	}
	// The doubling from 20 is clamped to the limit.
	assert.Equal(t, 25, cap(fb.frames))

	assert.False(t, fb.append(RawFrame{Method: method, NativeOffset: 25}))
	assert.Equal(t, 25, fb.len())
	assert.Equal(t, uint32(24), fb.frames[24].NativeOffset)
}
