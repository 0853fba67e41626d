// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stacktrace // import "go.opentelemetry.io/ilstack/stacktrace"

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"go.opentelemetry.io/ilstack/libpf"
	npsr "go.opentelemetry.io/ilstack/nopanicslicereader"
)

// Binary layout of an exception trace, all little endian:
//
//	header:  magic "ILST" | version u16 | count u32 | xxh3-64 of the records
//	records: handle u64 | address u64 | flags u32 | reserved u32
const (
	persistedMagic   = "ILST"
	persistedVersion = 1

	headerSize = 4 + 2 + 4 + 8
	recordSize = 24
)

var (
	ErrBadMagic      = errors.New("not an exception trace")
	ErrTruncated     = errors.New("exception trace truncated")
	ErrChecksum      = errors.New("exception trace checksum mismatch")
	ErrUnknownMethod = errors.New("unknown method handle")
)

// MethodLookup returns the method of a handle stored in an exception trace.
type MethodLookup func(handle libpf.MethodHandle) (*libpf.Method, bool)

// MarshalBinary encodes the exception trace.
func (et *ExceptionTrace) MarshalBinary() ([]byte, error) {
	records := make([]byte, 0, len(et.frames)*recordSize)
	for _, f := range et.frames {
		records = binary.LittleEndian.AppendUint64(records, uint64(f.Method.Handle))
		records = binary.LittleEndian.AppendUint64(records, uint64(f.Address))
		records = binary.LittleEndian.AppendUint32(records, uint32(f.Flags))
		records = binary.LittleEndian.AppendUint32(records, 0)
	}

	out := make([]byte, 0, headerSize+len(records))
	out = append(out, persistedMagic...)
	out = binary.LittleEndian.AppendUint16(out, persistedVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(et.frames)))
	out = binary.LittleEndian.AppendUint64(out, xxh3.Hash(records))
	return append(out, records...), nil
}

// UnmarshalExceptionTrace decodes data produced by MarshalBinary. Method
// handles are bound to methods with lookup.
func UnmarshalExceptionTrace(data []byte, lookup MethodLookup) (*ExceptionTrace, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if string(data[:4]) != persistedMagic {
		return nil, ErrBadMagic
	}
	if version := npsr.Uint16(data, 4); version != persistedVersion {
		return nil, fmt.Errorf("unsupported exception trace version %d", version)
	}
	count := npsr.Uint32(data, 6)
	checksum := npsr.Uint64(data, 10)

	records := data[headerSize:]
	if uint64(len(records)) != uint64(count)*recordSize {
		return nil, fmt.Errorf("%w: %d bytes for %d frames", ErrTruncated, len(records), count)
	}
	if xxh3.Hash(records) != checksum {
		return nil, ErrChecksum
	}

	et := &ExceptionTrace{frames: make([]PersistedFrame, 0, count)}
	for i := range uint(count) {
		offs := i * recordSize
		handle := npsr.MethodHandle(records, offs)
		flags := FrameFlags(npsr.Uint32(records, offs+16))
		if flags&^knownFrameFlags != 0 {
			return nil, fmt.Errorf("frame %d: unsupported flags %#x", i, uint32(flags))
		}
		method, ok := lookup(handle)
		if !ok || method == nil {
			return nil, fmt.Errorf("frame %d: %w %#x", i, ErrUnknownMethod, uint64(handle))
		}
		et.frames = append(et.frames, PersistedFrame{
			Method:  method,
			Address: npsr.Ptr(records, offs+8),
			Flags:   flags,
		})
	}
	return et, nil
}
