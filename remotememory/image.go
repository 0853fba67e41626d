// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory // import "go.opentelemetry.io/ilstack/remotememory"

import (
	"fmt"
	"io"
	"sort"

	"go.opentelemetry.io/ilstack/libpf"
)

type segment struct {
	base libpf.Address
	data []byte
}

// Image is an in-memory snapshot of selected address ranges of a process.
// It serves recorded fixtures and tests in place of a live process.
type Image struct {
	segments []segment
}

// Map places data at address base. Segments must not overlap.
func (im *Image) Map(base libpf.Address, data []byte) error {
	end := base + libpf.Address(len(data))
	for _, s := range im.segments {
		if base < s.base+libpf.Address(len(s.data)) && s.base < end {
			return fmt.Errorf("segment 0x%x-0x%x overlaps 0x%x", base, end, s.base)
		}
	}
	im.segments = append(im.segments, segment{base: base, data: data})
	sort.Slice(im.segments, func(i, j int) bool {
		return im.segments[i].base < im.segments[j].base
	})
	return nil
}

// ReadAt implements io.ReaderAt. Reads crossing the end of a segment return
// the available prefix with io.EOF.
func (im *Image) ReadAt(p []byte, off int64) (int, error) {
	addr := libpf.Address(off)
	idx := sort.Search(len(im.segments), func(i int) bool {
		return im.segments[i].base > addr
	}) - 1
	if idx < 0 {
		return 0, fmt.Errorf("address 0x%x not mapped", addr)
	}
	s := im.segments[idx]
	start := addr - s.base
	if start >= libpf.Address(len(s.data)) {
		return 0, fmt.Errorf("address 0x%x not mapped", addr)
	}
	n := copy(p, s.data[start:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// RemoteMemory wraps the image for use by the debug info provider.
func (im *Image) RemoteMemory() RemoteMemory {
	return RemoteMemory{ReaderAt: im}
}
