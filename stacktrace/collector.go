// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package stacktrace captures managed stack traces in two phases.
//
// Phase 1 (BeginCapture) runs while the unwinder walks the thread and only
// records raw frames into a growable buffer. It takes no locks, does not log
// and does not call the symbol provider, so it may run in a context where
// none of that is allowed.
//
// Phase 2 (Finalize) runs afterwards in an unrestricted context and resolves
// the IL offset of every recorded frame. It may block in the symbol provider.
//
// Capture runs both phases. CaptureFromException rebuilds the raw frames from
// a persisted exception trace instead of walking a thread and then runs
// phase 2 unchanged.
package stacktrace // import "go.opentelemetry.io/ilstack/stacktrace"

import (
	"errors"
	"slices"
	"sync/atomic"

	"go.opentelemetry.io/ilstack/libpf"
	"go.opentelemetry.io/ilstack/metrics"
)

var (
	// ErrSessionFinalized is returned when finalizing a session a second time.
	ErrSessionFinalized = errors.New("capture session already finalized")

	// ErrSessionNotDone is returned when finalizing a session whose walk has
	// not completed.
	ErrSessionNotDone = errors.New("capture session still enumerating")
)

// SessionState is the progress of a capture session.
type SessionState uint8

const (
	StateEnumerating SessionState = iota
	StateDone
	StateFinalized
)

func (s SessionState) String() string {
	switch s {
	case StateEnumerating:
		return "enumerating"
	case StateDone:
		return "done"
	case StateFinalized:
		return "finalized"
	}
	return "unknown"
}

// Source is where the frames of a session come from.
type Source uint8

const (
	SourceLive Source = iota
	SourceException
)

// Session holds the raw frames of one capture between the two phases. It is
// owned by the capturing goroutine.
type Session struct {
	buf       frameBuffer
	requested int
	state     SessionState
	truncated bool
	source    Source
}

// State returns the current state of the session.
func (s *Session) State() SessionState {
	return s.state
}

// Truncated reports whether frames were dropped because the frame buffer
// could not grow.
func (s *Session) Truncated() bool {
	return s.truncated
}

// Len returns the number of frames recorded.
func (s *Session) Len() int {
	return s.buf.len()
}

// visit is the phase 1 frame visitor.
func (s *Session) visit(frame RawFrame) WalkAction {
	if s.state != StateEnumerating {
		return WalkStop
	}
	if !s.buf.append(frame) {
		s.truncated = true
		s.state = StateDone
		return WalkStop
	}
	if s.requested > 0 && s.buf.len() >= s.requested {
		s.state = StateDone
		return WalkStop
	}
	return WalkContinue
}

// Trace is a captured stack trace with resolved IL offsets.
type Trace struct {
	Frames []ResolvedFrame
	// ForeignBoundary has one entry per frame and is only allocated when a
	// frame rebuilt from an exception trace ends a foreign segment.
	ForeignBoundary []bool
	// DynamicMethods lists the methods of the trace that may be unloaded or
	// regenerated. Holding the trace keeps them referenced.
	DynamicMethods []*libpf.Method
	// Truncated is set when frames were dropped.
	Truncated bool
}

// IsLastFrameFromForeignStackTrace reports whether frame i ends a segment
// captured by an earlier throw.
func (t *Trace) IsLastFrameFromForeignStackTrace(i int) bool {
	return t.ForeignBoundary != nil && t.ForeignBoundary[i]
}

// Collector captures stack traces. It is safe for concurrent use.
type Collector struct {
	resolver  Resolver
	codeMap   CodeMap
	maxFrames int

	truncatedCount atomic.Uint64
}

// Option configures a Collector.
type Option func(*Collector)

// WithCodeMap sets the CodeMap used to compute native offsets of frames
// rebuilt from exception traces.
func WithCodeMap(codeMap CodeMap) Option {
	return func(c *Collector) {
		c.codeMap = codeMap
	}
}

// WithMaxFrames limits the number of frames a capture can hold. 0 means no limit.
func WithMaxFrames(n int) Option {
	return func(c *Collector) {
		c.maxFrames = max(n, 0)
	}
}

// NewCollector returns a Collector resolving frames with resolver.
func NewCollector(resolver Resolver, opts ...Option) *Collector {
	c := &Collector{resolver: resolver}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginCapture runs phase 1: it walks the frames reported by u and records up
// to requested frames, or all of them when requested is 0. The walk also ends
// when the frame buffer cannot grow, keeping the frames recorded so far.
func (c *Collector) BeginCapture(u Unwinder, requested int) *Session {
	s := &Session{
		buf:       newFrameBuffer(requested, c.maxFrames),
		requested: max(requested, 0),
		source:    SourceLive,
	}
	u.WalkFrames(s.visit)
	s.state = StateDone
	return s
}

// Finalize runs phase 2 on a completed session and returns the trace.
func (c *Collector) Finalize(s *Session) (*Trace, error) {
	switch s.state {
	case StateFinalized:
		return nil, ErrSessionFinalized
	case StateEnumerating:
		return nil, ErrSessionNotDone
	}
	s.state = StateFinalized
	if s.truncated {
		c.truncatedCount.Add(1)
	}

	frames := s.buf.frames
	trace := &Trace{
		Frames:    make([]ResolvedFrame, len(frames)),
		Truncated: s.truncated,
	}
	for i, f := range frames {
		trace.Frames[i] = ResolvedFrame{
			RawFrame: f,
			ILOffset: c.resolver.Resolve(f.Method, f.Address, f.NativeOffset, f.IPAdjusted()),
		}

		if s.source == SourceException && f.Flags&FlagLastFrameFromForeignStackTrace != 0 {
			if trace.ForeignBoundary == nil {
				trace.ForeignBoundary = make([]bool, len(frames))
			}
			trace.ForeignBoundary[i] = true
		}

		if !f.Method.Cacheable() && !slices.ContainsFunc(trace.DynamicMethods,
			func(m *libpf.Method) bool { return m.Handle == f.Method.Handle }) {
			trace.DynamicMethods = append(trace.DynamicMethods, f.Method)
		}
	}
	return trace, nil
}

// Capture runs both phases.
func (c *Collector) Capture(u Unwinder, requested int) (*Trace, error) {
	return c.Finalize(c.BeginCapture(u, requested))
}

// CaptureFromException builds the trace of an exception that is thrown
// again from the frames persisted by its earlier throws.
func (c *Collector) CaptureFromException(et *ExceptionTrace) (*Trace, error) {
	if et == nil {
		return nil, errors.New("no exception trace")
	}
	s := &Session{
		buf:    newFrameBuffer(et.Len(), c.maxFrames),
		source: SourceException,
	}
	for _, pf := range et.frames {
		frame := RawFrame{
			Method:  pf.Method,
			Address: pf.Address,
			Flags:   pf.Flags,
		}
		if pf.Address != 0 && c.codeMap != nil {
			if offset, ok := c.codeMap.NativeOffset(pf.Address); ok {
				frame.NativeOffset = offset
			}
		}
		if s.visit(frame) == WalkStop {
			break
		}
	}
	s.state = StateDone
	return c.Finalize(s)
}

// GetAndResetMetrics returns the collector counters accumulated since the last call.
func (c *Collector) GetAndResetMetrics() []metrics.Metric {
	return []metrics.Metric{
		{
			ID:    metrics.IDCaptureTruncated,
			Value: metrics.MetricValue(c.truncatedCount.Swap(0)),
		},
	}
}
