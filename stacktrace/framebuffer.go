// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stacktrace // import "go.opentelemetry.io/ilstack/stacktrace"

// defaultFrameCapacity is the initial frame buffer size of unbounded captures.
const defaultFrameCapacity = 20

// frameBuffer collects the frames of one walk. It runs inside the unwinder
// callback and must not lock, log or call out. Growing the backing array is
// its only allocation.
type frameBuffer struct {
	frames []RawFrame
	// limit is the maximum number of frames, 0 for no limit.
	limit int
	grows int
}

func newFrameBuffer(requested, limit int) frameBuffer {
	capacity := defaultFrameCapacity
	if requested > 0 {
		capacity = min(requested, defaultFrameCapacity)
	}
	if limit > 0 {
		capacity = min(capacity, limit)
	}
	return frameBuffer{
		frames: make([]RawFrame, 0, capacity),
		limit:  limit,
	}
}

// append adds a frame, doubling the capacity when full. It returns false
// and leaves the buffer untouched when the buffer cannot grow.
func (fb *frameBuffer) append(frame RawFrame) bool {
	if len(fb.frames) == cap(fb.frames) {
		newCap := max(2*cap(fb.frames), 1)
		if fb.limit > 0 {
			if cap(fb.frames) >= fb.limit {
				return false
			}
			newCap = min(newCap, fb.limit)
		}
		frames := make([]RawFrame, len(fb.frames), newCap)
		copy(frames, fb.frames)
		fb.frames = frames
		fb.grows++
	}
	fb.frames = append(fb.frames, frame)
	return true
}

func (fb *frameBuffer) len() int {
	return len(fb.frames)
}
