// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"defaults": {
			mutate: func(*Config) {},
		},
		"negative max frames": {
			mutate:  func(c *Config) { c.MaxFrames = -1 },
			wantErr: "invalid max frames: -1",
		},
		"runtime 6": {
			mutate: func(c *Config) { c.RuntimeMajorVersion = 6 },
		},
		"runtime 11": {
			mutate:  func(c *Config) { c.RuntimeMajorVersion = 11 },
			wantErr: "unsupported runtime major version: 11",
		},
		"no debug info cache": {
			mutate:  func(c *Config) { c.DebugInfoCacheSize = 0 },
			wantErr: errNoDebugInfoCache.Error(),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestCacheSize(t *testing.T) {
	for size, want := range map[int]uint32{
		-5:   1,
		0:    1,
		1:    1,
		1000: 1000,
	} {
		assert.Equal(t, want, ClampCacheSize(size), "size %d", size)
	}
	assert.Equal(t, uint32(DefaultNativeToILCacheSize), Default().CacheSize())
}
