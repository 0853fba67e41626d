// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "go.opentelemetry.io/ilstack/libpf"

import "fmt"

// MethodHandle is the runtime's identity of a method (its MethodDesc pointer).
// The zero value is never a valid handle.
type MethodHandle uint64

// Hash32 returns a 32 bits hash of the handle for use as a cache key.
func (h MethodHandle) Hash32() uint32 {
	return Address(h).Hash32()
}

// MethodClassification is the coreclr vm categorization of the method type as defined in:
// https://github.com/dotnet/runtime/blob/v7.0.15/src/coreclr/vm/method.hpp#L93
type MethodClassification uint16

const (
	MethodIL MethodClassification = iota
	MethodFCall
	MethodNDirect
	MethodEEImpl
	MethodArray
	MethodInstantiated
	MethodComInterop
	MethodDynamic
)

var methodClassificationName = []string{
	MethodIL:           "method",
	MethodFCall:        "fcall",
	MethodNDirect:      "ndirect",
	MethodEEImpl:       "eeimpl",
	MethodArray:        "array",
	MethodInstantiated: "instantiated",
	MethodComInterop:   "cominterop",
	MethodDynamic:      "dynamic",
}

func (c MethodClassification) String() string {
	if int(c) < len(methodClassificationName) {
		return methodClassificationName[c]
	}
	return fmt.Sprintf("classification(%d)", uint16(c))
}

// Method carries the few facts about a managed method that stack trace
// resolution depends on.
type Method struct {
	// Handle identifies the method. Must be non-zero.
	Handle MethodHandle
	// Name is informational only.
	Name string
	// Classification is the runtime's method kind. MethodDynamic marks
	// lightweight code generated methods (DynamicMethod).
	Classification MethodClassification
	// Collectible is set when the declaring type lives in an unloadable
	// (collectible) loader context.
	Collectible bool
}

// IsDynamic reports whether the method body was generated at run time.
func (m *Method) IsDynamic() bool {
	return m.Classification == MethodDynamic
}

// Cacheable reports whether the identity and native code of the method stay
// fixed for the lifetime of the process. Results derived from non-cacheable
// methods must be recomputed on every use because the method can be unloaded
// or regenerated.
func (m *Method) Cacheable() bool {
	return !m.IsDynamic() && !m.Collectible
}

func (m *Method) String() string {
	if m.Name != "" {
		return fmt.Sprintf("%s@%#x", m.Name, uint64(m.Handle))
	}
	return fmt.Sprintf("%s@%#x", m.Classification, uint64(m.Handle))
}
