// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Defines the fixture format and turns a fixture into the inputs of a capture.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"go.opentelemetry.io/ilstack/config"
	"go.opentelemetry.io/ilstack/debuginfo"
	"go.opentelemetry.io/ilstack/libpf"
	"go.opentelemetry.io/ilstack/remotememory"
	"go.opentelemetry.io/ilstack/stacktrace"
)

// debugInfoBase is where the encoded debug info of fixture methods is placed
// in the synthetic process image.
const (
	debugInfoBase   libpf.Address = 0x7e0000000000
	debugInfoStride libpf.Address = 0x10000
)

// Fixture is a recorded stack walk together with the runtime state needed to
// resolve it.
type Fixture struct {
	Methods   []MethodInfo `json:"methods"`
	Walk      []FrameInfo  `json:"walk"`
	Exception []FrameInfo  `json:"exception,omitempty"`
}

// MethodInfo describes one managed method.
type MethodInfo struct {
	Handle      uint64    `json:"handle"`
	Name        string    `json:"name"`
	Dynamic     bool      `json:"dynamic,omitempty"`
	Collectible bool      `json:"collectible,omitempty"`
	Code        *CodeInfo `json:"code,omitempty"`
}

// CodeInfo is the JIT compiled code of a method. Bounds are used for
// replays from the fixture alone. DebugInfo is the address of the method's
// debug info in a live process and is used instead when replaying against it.
type CodeInfo struct {
	Start     uint64      `json:"start"`
	Size      uint32      `json:"size"`
	Bounds    []BoundInfo `json:"bounds,omitempty"`
	DebugInfo uint64      `json:"debug-info,omitempty"`
}

func (ci *CodeInfo) debugInfo() debuginfo.DebugInfo {
	di := debuginfo.DebugInfo{Bounds: make([]debuginfo.Bound, 0, len(ci.Bounds))}
	for _, b := range ci.Bounds {
		di.Bounds = append(di.Bounds, debuginfo.Bound{
			NativeOffset: b.Native,
			ILOffset:     uint32(b.IL),
			SourceFlags:  b.Flags,
		})
	}
	return di
}

// BoundInfo is one native to IL boundary. Negative IL offsets are the
// runtime's special mapping values (-1 no mapping, -2 prolog, -3 epilog).
type BoundInfo struct {
	Native uint32 `json:"native"`
	IL     int32  `json:"il"`
	Flags  uint32 `json:"flags,omitempty"`
}

// FrameInfo is one frame of a walk or of a persisted exception trace.
type FrameInfo struct {
	Method       uint64 `json:"method"`
	Address      uint64 `json:"address"`
	NativeOffset uint32 `json:"native-offset,omitempty"`
	Flags        uint32 `json:"flags,omitempty"`
}

// readFile reads a file, decompressing it if its name ends in .zst.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) != ".zst" {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// writeFile writes a file, compressing it if its name ends in .zst.
func writeFile(path string, data []byte) error {
	if filepath.Ext(path) == ".zst" {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		data = enc.EncodeAll(data, nil)
		if err = enc.Close(); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func loadFixture(path string) (*Fixture, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	fx := &Fixture{}
	if err = json.Unmarshal(data, fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	if len(fx.Walk) == 0 {
		return nil, errors.New("fixture has no walk")
	}
	return fx, nil
}

// environment is a fixture prepared for capturing.
type environment struct {
	methods   map[libpf.MethodHandle]*libpf.Method
	provider  *debuginfo.Provider
	walk      []stacktrace.RawFrame
	exception *stacktrace.ExceptionTrace
}

// build prepares the fixture for capturing. With a non-zero pid the debug
// info is read from that process, otherwise it is encoded from the fixture's
// bounds into an in-memory image.
func (fx *Fixture) build(cfg *config.Config, pid libpf.PID) (*environment, error) {
	layout, err := debuginfo.LayoutForRuntime(cfg.RuntimeMajorVersion)
	if err != nil {
		return nil, err
	}

	env := &environment{
		methods: make(map[libpf.MethodHandle]*libpf.Method, len(fx.Methods)),
	}
	im := &remotememory.Image{}
	rm := im.RemoteMemory()
	if pid != 0 {
		rm = remotememory.NewProcessVirtualMemory(pid)
	}

	var regions []debuginfo.Region
	for i, mi := range fx.Methods {
		if mi.Handle == 0 {
			return nil, fmt.Errorf("method %d (%s) has no handle", i, mi.Name)
		}
		m := &libpf.Method{
			Handle:      libpf.MethodHandle(mi.Handle),
			Name:        mi.Name,
			Collectible: mi.Collectible,
		}
		if mi.Dynamic {
			m.Classification = libpf.MethodDynamic
		}
		env.methods[m.Handle] = m

		if mi.Code == nil {
			continue
		}
		addr := libpf.Address(mi.Code.DebugInfo)
		switch {
		case pid == 0 && addr != 0:
			return nil, fmt.Errorf("method %s: debug info address needs a process", mi.Name)
		case pid == 0:
			addr = debugInfoBase + libpf.Address(i)*debugInfoStride
			di := mi.Code.debugInfo()
			if err = im.Map(addr, di.Encode(layout)); err != nil {
				return nil, err
			}
		case addr == 0:
			return nil, fmt.Errorf("method %s has no debug info address", mi.Name)
		default:
			var first [1]byte
			if err = rm.Read(addr, first[:]); err != nil {
				return nil, fmt.Errorf("debug info of %s is not readable: %w", mi.Name, err)
			}
		}
		regions = append(regions, debuginfo.Region{
			Method:    m,
			Start:     libpf.Address(mi.Code.Start),
			Size:      mi.Code.Size,
			DebugInfo: addr,
		})
	}

	if env.provider, err = debuginfo.NewProvider(rm, cfg); err != nil {
		return nil, err
	}
	for _, r := range regions {
		if err = env.provider.AddRegion(r); err != nil {
			return nil, err
		}
	}

	for i, fi := range fx.Walk {
		m, ok := env.lookup(libpf.MethodHandle(fi.Method))
		if !ok {
			return nil, fmt.Errorf("walk frame %d: unknown method %#x", i, fi.Method)
		}
		env.walk = append(env.walk, stacktrace.RawFrame{
			Method:       m,
			Address:      libpf.Address(fi.Address),
			NativeOffset: fi.NativeOffset,
			Flags:        stacktrace.FrameFlags(fi.Flags),
		})
	}

	if len(fx.Exception) != 0 {
		env.exception = &stacktrace.ExceptionTrace{}
		for i, fi := range fx.Exception {
			m, ok := env.lookup(libpf.MethodHandle(fi.Method))
			if !ok {
				return nil, fmt.Errorf("exception frame %d: unknown method %#x", i, fi.Method)
			}
			if err = env.exception.Append(stacktrace.PersistedFrame{
				Method:  m,
				Address: libpf.Address(fi.Address),
				Flags:   stacktrace.FrameFlags(fi.Flags),
			}); err != nil {
				return nil, err
			}
		}
	}
	return env, nil
}

// lookup implements stacktrace.MethodLookup.
func (env *environment) lookup(handle libpf.MethodHandle) (*libpf.Method, bool) {
	m, ok := env.methods[handle]
	return m, ok
}

// WalkFrames implements stacktrace.Unwinder by replaying the recorded walk.
func (env *environment) WalkFrames(visit stacktrace.FrameVisitor) {
	for _, f := range env.walk {
		if visit(f) == stacktrace.WalkStop {
			return
		}
	}
}
