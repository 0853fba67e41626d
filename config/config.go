// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the tunables of stack trace capture and IL offset
// resolution.
package config // import "go.opentelemetry.io/ilstack/config"

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultNativeToILCacheSize is the number of slots of the process wide
	// native to IL offset cache.
	DefaultNativeToILCacheSize = 1000

	// DefaultDebugInfoCacheSize is the number of decoded bounds tables kept
	// by the debug info provider.
	DefaultDebugInfoCacheSize = 1024

	// DefaultRuntimeMajorVersion selects the debug info layout used when no
	// version is configured.
	DefaultRuntimeMajorVersion = 8
)

// Config is the configuration for capture and resolution.
type Config struct {
	// NativeToILCacheSize is the capacity of the native to IL offset cache.
	// Values below 1 are treated as 1.
	NativeToILCacheSize int `mapstructure:"native_to_il_cache_size"`
	// MaxFrames is the hard ceiling of the frame buffer. 0 means unlimited.
	MaxFrames int `mapstructure:"max_frames"`
	// DebugInfoCacheSize is the size of the decoded bounds LRU.
	DebugInfoCacheSize uint32 `mapstructure:"debug_info_cache_size"`
	// RuntimeMajorVersion is the CoreCLR major version whose debug info
	// layout is decoded.
	RuntimeMajorVersion uint `mapstructure:"runtime_major_version"`
	// Verbose enables debug logging.
	Verbose bool `mapstructure:"verbose"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		NativeToILCacheSize: DefaultNativeToILCacheSize,
		DebugInfoCacheSize:  DefaultDebugInfoCacheSize,
		RuntimeMajorVersion: DefaultRuntimeMajorVersion,
	}
}

var errNoDebugInfoCache = errors.New("debug info cache size must be at least 1")

// Validate checks the configuration for values that cannot be used.
func (cfg *Config) Validate() error {
	if cfg.MaxFrames < 0 {
		return fmt.Errorf("invalid max frames: %d", cfg.MaxFrames)
	}
	switch cfg.RuntimeMajorVersion {
	case 6, 7, 8, 9, 10:
	default:
		return fmt.Errorf("unsupported runtime major version: %d", cfg.RuntimeMajorVersion)
	}
	if cfg.DebugInfoCacheSize == 0 {
		return errNoDebugInfoCache
	}
	return nil
}

// CacheSize returns the native to IL offset cache capacity, clamped to at least 1.
func (cfg *Config) CacheSize() uint32 {
	return ClampCacheSize(cfg.NativeToILCacheSize)
}

// ClampCacheSize converts a configured cache size into a usable capacity.
func ClampCacheSize(size int) uint32 {
	if size <= 0 {
		log.Warnf("Native to IL cache size %d too small, using 1", size)
		return 1
	}
	return uint32(size)
}
