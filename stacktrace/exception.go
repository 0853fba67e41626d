// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stacktrace // import "go.opentelemetry.io/ilstack/stacktrace"

import (
	"errors"
	"slices"

	"go.opentelemetry.io/ilstack/libpf"
)

var errNoMethod = errors.New("frame without method")

// PersistedFrame is a frame as stored with an exception object.
type PersistedFrame struct {
	Method  *libpf.Method
	Address libpf.Address
	Flags   FrameFlags
}

// ExceptionTrace is the ordered frame sequence an exception accumulates while
// it propagates. It is kept with the exception and used to rebuild the trace
// when the exception is thrown again.
type ExceptionTrace struct {
	frames []PersistedFrame
}

// Append adds frames to the end of the trace.
func (et *ExceptionTrace) Append(frames ...PersistedFrame) error {
	for _, f := range frames {
		if f.Method == nil {
			return errNoMethod
		}
	}
	et.frames = append(et.frames, frames...)
	return nil
}

// AppendTrace adds the frames of a captured trace.
func (et *ExceptionTrace) AppendTrace(t *Trace) {
	for i := range t.Frames {
		f := &t.Frames[i]
		et.frames = append(et.frames, PersistedFrame{
			Method:  f.Method,
			Address: f.Address,
			Flags:   f.Flags,
		})
	}
}

// MarkForeignBoundary flags the current last frame as the end of a foreign
// segment. It is called when the exception is thrown again from another
// context, before new frames are appended.
func (et *ExceptionTrace) MarkForeignBoundary() {
	if len(et.frames) == 0 {
		return
	}
	et.frames[len(et.frames)-1].Flags |= FlagLastFrameFromForeignStackTrace
}

// Len returns the number of frames.
func (et *ExceptionTrace) Len() int {
	return len(et.frames)
}

// Frames returns a copy of the frames.
func (et *ExceptionTrace) Frames() []PersistedFrame {
	return slices.Clone(et.frames)
}
