// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debuginfo // import "go.opentelemetry.io/ilstack/debuginfo"

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	npsr "go.opentelemetry.io/ilstack/nopanicslicereader"
)

// Special IL offsets of boundary entries, as defined in:
// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/inc/cordebuginfo.h#L16
const (
	ILNoMapping uint32 = 0xFFFFFFFF
	ILProlog    uint32 = 0xFFFFFFFE
	ILEpilog    uint32 = 0xFFFFFFFD

	// The bounds blob stores IL offsets biased by the number of special values.
	mappingTypeBias = 3
)

// Debug Info Boundary info's Source Type valid mask
// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/inc/cordebuginfo.h#L41
const (
	SourceStackEmpty      uint32 = 0x01
	SourceCallSite        uint32 = 0x02
	SourceNativeEndOffset uint32 = 0x04
	SourceCallInstruction uint32 = 0x10
)

// CLR internal debug info flags
// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/vm/debuginfostore.cpp#L458
const (
	extraDebugInfoPatchpoint = 0x01
	extraDebugInfoRich       = 0x02
)

// maxBoundsSize is the maximum size of boundary debug info (for a method)
// that we accept as valid.
const maxBoundsSize = 16 * 1024

// Bound is one entry of a method's native to IL boundary table.
type Bound struct {
	NativeOffset uint32
	// ILOffset is the IL offset or one of ILNoMapping, ILProlog and ILEpilog.
	ILOffset    uint32
	SourceFlags uint32
}

func (b Bound) special() bool {
	return b.ILOffset >= ILEpilog
}

// Layout describes the runtime version dependent parts of the debug info.
type Layout struct {
	// PatchpointInfoSize is sizeof(PatchpointInfo).
	PatchpointInfoSize uint
	// PatchpointNumLocals is the offset of the number of locals in PatchpointInfo.
	PatchpointNumLocals uint
}

// LayoutForRuntime returns the debug info layout of a CoreCLR major version.
func LayoutForRuntime(major uint) (Layout, error) {
	switch major {
	case 6:
		return Layout{PatchpointInfoSize: 20, PatchpointNumLocals: 0}, nil
	case 7, 8, 9, 10:
		// PatchpointInfo was adjusted in:
		// https://github.com/dotnet/runtime/pull/65196
		return Layout{PatchpointInfoSize: 32, PatchpointNumLocals: 8}, nil
	default:
		return Layout{}, fmt.Errorf("unsupported runtime major version %d", major)
	}
}

// readBoundsBlob parses the dotnet coreclr DebugInfo structure and returns the
// raw bounds portion of it.
// https://github.com/dotnet/runtime/blob/main/src/coreclr/vm/debuginfostore.cpp#L711
func readBoundsBlob(r *cachingReader, layout Layout) ([]byte, error) {
	// The Flags byte is present whenever FEATURE_ON_STACK_REPLACEMENT is
	// enabled, which is always the case for x64 and arm64.
	// https://github.com/dotnet/runtime/blob/main/src/coreclr/vm/codeman.cpp#L3786-L3804
	flags, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}
	if flags&^(extraDebugInfoPatchpoint|extraDebugInfoRich) != 0 {
		return nil, fmt.Errorf("flags (%#x) not supported", flags)
	}
	if flags&extraDebugInfoPatchpoint != 0 {
		// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/inc/patchpointinfo.h#L29-L35
		patchpointInfo := make([]byte, layout.PatchpointInfoSize)
		if _, err = r.Read(patchpointInfo); err != nil {
			return nil, fmt.Errorf("failed to read patchpoint info: %w", err)
		}
		numLocals := npsr.Uint32(patchpointInfo, layout.PatchpointNumLocals)
		r.Skip(int(numLocals * 4))
		log.Debugf("debug info: skipped patchpoint info with %d locals", numLocals)
	}
	if flags&extraDebugInfoRich != 0 {
		var lengthBytes [4]byte
		if _, err = r.Read(lengthBytes[:]); err != nil {
			return nil, fmt.Errorf("failed to read rich debug: %w", err)
		}
		// Rich debug info only adds inlining data.
		r.Skip(int(binary.LittleEndian.Uint32(lengthBytes[:])))
	}

	// https://github.com/dotnet/runtime/blob/main/src/coreclr/vm/debuginfostore.cpp#L759-L765
	nr := nibbleReader{ByteReader: r}
	numBytesBounds := nr.Uint32()
	numBytesVars := nr.Uint32()
	nr.AlignToBytes()
	if err := nr.Error(); err != nil {
		return nil, fmt.Errorf("failed to read bounds header: %w", err)
	}
	log.Debugf("debug info: bounds size %d, vars size %d", numBytesBounds, numBytesVars)
	if numBytesBounds > maxBoundsSize {
		return nil, fmt.Errorf("boundary debug info size %d is too large", numBytesBounds)
	}

	blob := make([]byte, numBytesBounds)
	if _, err := r.Read(blob); err != nil {
		return nil, fmt.Errorf("failed to read bounds: %w", err)
	}
	return blob, nil
}

// decodeBounds decodes the Bounds Info portion of DebugInfo.
// https://github.com/dotnet/runtime/blob/main/src/coreclr/vm/debuginfostore.cpp#L289-L310
func decodeBounds(blob []byte) ([]Bound, error) {
	nr := nibbleReader{ByteReader: bytes.NewReader(blob)}
	numEntries := nr.Uint32()
	// Each entry takes at least three nibbles.
	if uint64(numEntries)*3 > uint64(len(blob))*2 {
		return nil, fmt.Errorf("%d bounds do not fit %d bytes", numEntries, len(blob))
	}

	bounds := make([]Bound, 0, numEntries)
	nativeOffset := uint32(0)
	for range numEntries {
		nativeOffset += nr.Uint32()
		bounds = append(bounds, Bound{
			NativeOffset: nativeOffset,
			ILOffset:     nr.Uint32() - mappingTypeBias,
			SourceFlags:  nr.Uint32(),
		})
	}
	if err := nr.Error(); err != nil {
		return nil, fmt.Errorf("failed to decode bounds: %w", err)
	}
	return bounds, nil
}

// mapNativeOffset returns the IL offset of the last entry at or before
// nativeOffset. Prolog, epilog and unmapped entries are often emitted for the
// same native offset as a real IL offset and do not replace it.
//
// NOTE: The optimizing JIT does not reliably generate CALL_INSTRUCTION
// mappings and often only emits STACK_EMPTY ones. The result is then only a
// coarse approximation. See:
// https://github.com/dotnet/runtime/issues/96473#issuecomment-1890383639
func mapNativeOffset(bounds []Bound, nativeOffset uint32) (uint32, bool) {
	ilOffset, found := uint32(0), false
	for _, b := range bounds {
		if b.NativeOffset > nativeOffset {
			break
		}
		if !b.special() {
			ilOffset, found = b.ILOffset, true
		}
	}
	return ilOffset, found
}

// DebugInfo is the content of one method's JIT debug info.
type DebugInfo struct {
	Bounds []Bound
	// PatchpointLocals is written as patchpoint info when HasPatchpoint is set.
	HasPatchpoint    bool
	PatchpointLocals uint32
	// Rich is written as rich debug info when non-empty.
	Rich []byte
	Vars []byte
}

// Encode serializes the debug info in the format the runtime stores it.
// Bounds are written ordered by native offset.
func (di *DebugInfo) Encode(layout Layout) []byte {
	bounds := slices.Clone(di.Bounds)
	slices.SortStableFunc(bounds, func(a, b Bound) int {
		switch {
		case a.NativeOffset < b.NativeOffset:
			return -1
		case a.NativeOffset > b.NativeOffset:
			return 1
		}
		return 0
	})

	bw := nibbleWriter{}
	bw.WriteUint32(uint32(len(bounds)))
	last := uint32(0)
	for _, b := range bounds {
		bw.WriteUint32(b.NativeOffset - last)
		bw.WriteUint32(b.ILOffset + mappingTypeBias)
		bw.WriteUint32(b.SourceFlags)
		last = b.NativeOffset
	}
	boundsBlob := bw.Bytes()

	flags := byte(0)
	if di.HasPatchpoint {
		flags |= extraDebugInfoPatchpoint
	}
	if len(di.Rich) != 0 {
		flags |= extraDebugInfoRich
	}
	out := []byte{flags}
	if di.HasPatchpoint {
		patchpointInfo := make([]byte, layout.PatchpointInfoSize)
		binary.LittleEndian.PutUint32(patchpointInfo[layout.PatchpointNumLocals:],
			di.PatchpointLocals)
		out = append(out, patchpointInfo...)
		out = append(out, make([]byte, 4*di.PatchpointLocals)...)
	}
	if len(di.Rich) != 0 {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(di.Rich)))
		out = append(out, di.Rich...)
	}

	hw := nibbleWriter{}
	hw.WriteUint32(uint32(len(boundsBlob)))
	hw.WriteUint32(uint32(len(di.Vars)))
	out = append(out, hw.Bytes()...)
	out = append(out, boundsBlob...)
	return append(out, di.Vars...)
}

// EncodeDebugInfo returns debug info holding only the given bounds.
func EncodeDebugInfo(bounds []Bound) []byte {
	di := DebugInfo{Bounds: bounds}
	return di.Encode(Layout{})
}
