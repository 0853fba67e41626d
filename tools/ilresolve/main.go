// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// ilresolve replays recorded stack walks through the capture pipeline and
// prints the resolved IL offsets. It also serves as a stress driver for the
// native to IL offset cache.

package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})

	if err := newRootCmd().ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Fatalf("%v", err)
		}
	}
}

func newRootCmd() *ffcli.Command {
	global := newGlobalArgs()
	set := flag.NewFlagSet("ilresolve", flag.ExitOnError)
	global.register(set)

	return &ffcli.Command{
		Name:       "ilresolve",
		ShortUsage: "ilresolve [flags] <subcommand> [flags]",
		ShortHelp:  "Tool for replaying managed stack walks and resolving IL offsets",
		FlagSet:    set,
		Options: []ff.Option{
			ff.WithEnvVarPrefix("ILRESOLVE"),
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ff.PlainParser),
			ff.WithAllowMissingConfigFile(true),
		},
		Subcommands: []*ffcli.Command{
			newReplayCmd(global),
			newStressCmd(global),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}
