// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodCacheable(t *testing.T) {
	tests := map[string]struct {
		method    Method
		dynamic   bool
		cacheable bool
	}{
		"il": {
			method:    Method{Handle: 1, Classification: MethodIL},
			cacheable: true,
		},
		"instantiated": {
			method:    Method{Handle: 2, Classification: MethodInstantiated},
			cacheable: true,
		},
		"dynamic": {
			method:  Method{Handle: 3, Classification: MethodDynamic},
			dynamic: true,
		},
		"collectible": {
			method: Method{Handle: 4, Classification: MethodIL, Collectible: true},
		},
		"collectible dynamic": {
			method:  Method{Handle: 5, Classification: MethodDynamic, Collectible: true},
			dynamic: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.dynamic, test.method.IsDynamic())
			assert.Equal(t, test.cacheable, test.method.Cacheable())
		})
	}
}

func TestMethodString(t *testing.T) {
	named := &Method{Handle: 0x10, Name: "Program.Main"}
	assert.Equal(t, "Program.Main@0x10", named.String())

	anonymous := &Method{Handle: 0x20, Classification: MethodDynamic}
	assert.Equal(t, "dynamic@0x20", anonymous.String())

	assert.Equal(t, "classification(42)", MethodClassification(42).String())
}
