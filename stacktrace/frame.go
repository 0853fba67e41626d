// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stacktrace // import "go.opentelemetry.io/ilstack/stacktrace"

import (
	"fmt"

	"go.opentelemetry.io/ilstack/libpf"
)

// FrameFlags carries per frame facts recorded while walking the stack.
type FrameFlags uint32

const (
	// FlagLastFrameFromForeignStackTrace marks the last frame of a trace
	// segment captured by an earlier throw of the same exception.
	FlagLastFrameFromForeignStackTrace FrameFlags = 0x1
	// FlagIPAdjusted marks frames whose address already points at the
	// faulting or calling instruction.
	FlagIPAdjusted FrameFlags = 0x2

	knownFrameFlags = FlagLastFrameFromForeignStackTrace | FlagIPAdjusted
)

// RawFrame is one frame as reported by the unwinder.
type RawFrame struct {
	// Method must not be nil.
	Method *libpf.Method
	// Address is the instruction address of the frame, 0 if the frame has
	// no native code.
	Address libpf.Address
	// NativeOffset is the offset of Address from the start of the method's
	// native code.
	NativeOffset uint32
	Flags        FrameFlags
}

// IPAdjusted reports whether FlagIPAdjusted is set.
func (f *RawFrame) IPAdjusted() bool {
	return f.Flags&FlagIPAdjusted != 0
}

// ResolvedFrame is a RawFrame with its IL offset.
type ResolvedFrame struct {
	RawFrame
	// ILOffset is iloffset.UnknownILOffset when it could not be resolved.
	ILOffset uint32
}

func (f ResolvedFrame) String() string {
	return fmt.Sprintf("%v+0x%x IL_%04x", f.Method, f.NativeOffset, f.ILOffset)
}

// WalkAction tells the unwinder whether to continue the walk.
type WalkAction uint8

const (
	WalkContinue WalkAction = iota
	WalkStop
)

// FrameVisitor is invoked by the unwinder once per frame, innermost first.
type FrameVisitor func(frame RawFrame) WalkAction

// Unwinder walks the managed frames of a thread. WalkFrames must stop calling
// visit once it returned WalkStop.
type Unwinder interface {
	WalkFrames(visit FrameVisitor)
}

// UnwinderFunc adapts a function to the Unwinder interface.
type UnwinderFunc func(visit FrameVisitor)

func (f UnwinderFunc) WalkFrames(visit FrameVisitor) {
	f(visit)
}

// Resolver returns the IL offset of a frame. iloffset.Resolver implements it.
type Resolver interface {
	Resolve(method *libpf.Method, addr libpf.Address, nativeOffset uint32,
		alreadyAdjusted bool) uint32
}

// CodeMap returns the offset of an address from the start of the method
// body containing it.
type CodeMap interface {
	NativeOffset(addr libpf.Address) (uint32, bool)
}
