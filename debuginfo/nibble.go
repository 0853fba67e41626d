// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debuginfo // import "go.opentelemetry.io/ilstack/debuginfo"

import (
	"errors"
	"io"
)

var errCorruptNibbles = errors.New("corrupt nibble data")

// nibbleReader provides the interface to read nibble encoded data as implemented in
// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/inc/nibblestream.h#L188
type nibbleReader struct {
	io.ByteReader

	cachedNibble uint8

	err error
}

func (nr *nibbleReader) Error() error {
	return nr.err
}

func (nr *nibbleReader) AlignToBytes() {
	nr.cachedNibble = 0
}

// ReadNibble reads one nibble from the stream.
// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/inc/nibblestream.h#L213
func (nr *nibbleReader) ReadNibble() uint8 {
	if nr.err != nil {
		return 0
	}
	if nr.cachedNibble != 0 {
		nibble := nr.cachedNibble & 0xf
		nr.cachedNibble = 0
		return nibble
	}

	b, err := nr.ReadByte()
	if err != nil {
		nr.err = err
		return 0
	}

	// Lower nibble first
	nibble := b & 0xf
	nr.cachedNibble = 0xf0 | (b >> 4)
	return nibble
}

// Uint32 reads one nibble encoded 32-bit unsigned integer.
// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/inc/nibblestream.h#L250
func (nr *nibbleReader) Uint32() uint32 {
	val := uint32(0)
	for range 11 {
		n := nr.ReadNibble()
		val = (val << 3) + uint32(n&0x7)
		if n&0x8 == 0 {
			return val
		}
	}
	nr.err = errCorruptNibbles
	return 0
}

// nibbleWriter produces the stream nibbleReader consumes.
type nibbleWriter struct {
	buf     []byte
	pending bool
}

func (nw *nibbleWriter) WriteNibble(n uint8) {
	if nw.pending {
		nw.buf[len(nw.buf)-1] |= n << 4
		nw.pending = false
		return
	}
	nw.buf = append(nw.buf, n&0xf)
	nw.pending = true
}

// WriteUint32 emits v in 3-bit groups, most significant first. Every group
// except the last carries the continuation bit.
func (nw *nibbleWriter) WriteUint32(v uint32) {
	var groups [11]uint8
	n := 0
	for {
		groups[n] = uint8(v & 0x7)
		n++
		v >>= 3
		if v == 0 {
			break
		}
	}
	for i := n - 1; i >= 0; i-- {
		nibble := groups[i]
		if i > 0 {
			nibble |= 0x8
		}
		nw.WriteNibble(nibble)
	}
}

// Bytes pads the stream to a byte boundary and returns it.
func (nw *nibbleWriter) Bytes() []byte {
	nw.pending = false
	return nw.buf
}
