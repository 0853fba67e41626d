// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ilstack/config"
	"go.opentelemetry.io/ilstack/iloffsetcache"
)

// Help strings for command line arguments
var (
	cacheSizeHelp = "Number of slots of the native to IL offset cache. " +
		"Values below 1 are treated as 1."
	maxFramesHelp          = "Maximum number of frames a capture can hold (0 for no limit)."
	debugInfoCacheSizeHelp = "Number of decoded debug info bounds tables to cache."
	runtimeVersionHelp     = "Major version of the .NET runtime the fixture was recorded from."
	verboseModeHelp        = "Enable verbose logging and debugging capabilities."
	configFileHelp         = "Plain config file with one 'flag value' pair per line."
)

type globalArgs struct {
	cfg *config.Config
}

func newGlobalArgs() *globalArgs {
	return &globalArgs{cfg: config.Default()}
}

func (g *globalArgs) register(fs *flag.FlagSet) {
	cfg := g.cfg
	fs.IntVar(&cfg.NativeToILCacheSize, "cache-size", cfg.NativeToILCacheSize, cacheSizeHelp)
	fs.IntVar(&cfg.MaxFrames, "max-frames", cfg.MaxFrames, maxFramesHelp)
	fs.Func("debug-info-cache-size", debugInfoCacheSizeHelp, func(s string) error {
		_, err := fmt.Sscan(s, &cfg.DebugInfoCacheSize)
		return err
	})
	fs.UintVar(&cfg.RuntimeMajorVersion, "runtime-version", cfg.RuntimeMajorVersion,
		runtimeVersionHelp)
	fs.BoolVar(&cfg.Verbose, "v", false, verboseModeHelp)
	fs.BoolVar(&cfg.Verbose, "verbose", false, verboseModeHelp)
	fs.String("config", "", configFileHelp)
}

// setup validates the configuration and applies the logging settings.
func (g *globalArgs) setup() (*config.Config, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}
	if g.cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	log.Debugf("Configuration: %+v", *g.cfg)
	if !iloffsetcache.Configure(g.cfg) {
		log.Warnf("Offset cache already in use, keeping %d slots",
			iloffsetcache.Default().Capacity())
	}
	return g.cfg, nil
}
