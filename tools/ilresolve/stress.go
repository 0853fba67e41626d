// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/ilstack/iloffset"
	"go.opentelemetry.io/ilstack/iloffsetcache"
	"go.opentelemetry.io/ilstack/stacktrace"
)

type stressCmd struct {
	global *globalArgs

	fixturePath string
	workers     int
	iterations  int
}

func newStressCmd(global *globalArgs) *ffcli.Command {
	args := &stressCmd{global: global}

	set := flag.NewFlagSet("stress", flag.ExitOnError)
	set.StringVar(&args.fixturePath, "fixture", "", "Path of the fixture to capture")
	set.IntVar(&args.workers, "workers", runtime.NumCPU(), "Number of concurrent capturers")
	set.IntVar(&args.iterations, "iterations", 1000, "Captures per worker")

	return &ffcli.Command{
		Name:       "stress",
		Exec:       args.exec,
		ShortUsage: "stress [flags]",
		ShortHelp:  "Capture a recorded walk concurrently through one shared offset cache",
		FlagSet:    set,
	}
}

func (cmd *stressCmd) exec(ctx context.Context, _ []string) error {
	if cmd.fixturePath == "" {
		return errors.New("missing `-fixture`")
	}
	if cmd.workers < 1 || cmd.iterations < 1 {
		return errors.New("`-workers` and `-iterations` must be positive")
	}
	cfg, err := cmd.global.setup()
	if err != nil {
		return err
	}
	fx, err := loadFixture(cmd.fixturePath)
	if err != nil {
		return err
	}
	env, err := fx.build(cfg, 0)
	if err != nil {
		return fmt.Errorf("failed to prepare fixture: %w", err)
	}

	// The reference capture resolves every frame through the provider.
	reference, err := stacktrace.NewCollector(iloffset.NewResolver(iloffsetcache.New(1), env.provider),
		stacktrace.WithCodeMap(env.provider),
		stacktrace.WithMaxFrames(cfg.MaxFrames)).Capture(env, 0)
	if err != nil {
		return err
	}
	want := ilOffsets(reference)

	shared := newPipeline(cfg, env, nil)
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cmd.workers; w++ {
		g.Go(func() error {
			// Each worker has its own collector and resolver. Only the cache
			// is shared.
			p := newPipeline(cfg, env, shared.cache)
			defer reportMetrics(slices.Concat(p.resolver.GetAndResetMetrics(),
				p.collector.GetAndResetMetrics()))

			for i := 0; i < cmd.iterations; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				trace, err := p.collector.Capture(env, 0)
				if err != nil {
					return err
				}
				if got := ilOffsets(trace); !slices.Equal(got, want) {
					return fmt.Errorf("worker %d iteration %d: IL offsets %x, want %x",
						w, i, got, want)
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"workers":    cmd.workers,
		"iterations": cmd.iterations,
		"frames":     len(want),
		"elapsed":    time.Since(start),
	}).Info("All captures matched the reference")
	reportMetrics(slices.Concat(shared.cache.GetAndResetMetrics(),
		env.provider.GetAndResetMetrics()))
	return nil
}

func ilOffsets(trace *stacktrace.Trace) []uint32 {
	offsets := make([]uint32, len(trace.Frames))
	for i := range trace.Frames {
		offsets[i] = trace.Frames[i].ILOffset
	}
	return offsets
}
