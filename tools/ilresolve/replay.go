// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ilstack/libpf"
	"go.opentelemetry.io/ilstack/stacktrace"
)

type replayCmd struct {
	global *globalArgs
	out    io.Writer

	fixturePath   string
	pid           int
	count         int
	passes        int
	fromException bool
	loadTracePath string
	saveTracePath string
}

// replayOutput is what replay prints for each pass.
type replayOutput struct {
	Frames            []string `json:"frames"`
	ForeignBoundaries []int    `json:"foreign-boundaries,omitempty"`
	DynamicMethods    []string `json:"dynamic-methods,omitempty"`
	Truncated         bool     `json:"truncated,omitempty"`
}

func newReplayCmd(global *globalArgs) *ffcli.Command {
	args := &replayCmd{global: global, out: os.Stdout}

	set := flag.NewFlagSet("replay", flag.ExitOnError)
	set.StringVar(&args.fixturePath, "fixture", "", "Path of the fixture to replay")
	set.IntVar(&args.pid, "pid", 0,
		"Read the debug info from the memory of this process at the fixture's debug-info addresses")
	set.IntVar(&args.count, "count", 0, "Number of frames to capture (0 for all)")
	set.IntVar(&args.passes, "passes", 1, "Number of times to capture the walk")
	set.BoolVar(&args.fromException, "exception", false,
		"Rebuild the trace from the exception frames of the fixture")
	set.StringVar(&args.loadTracePath, "load-exception-trace", "",
		"Rebuild the trace from a saved exception trace")
	set.StringVar(&args.saveTracePath, "save-exception-trace", "",
		"Save the captured trace as exception trace")

	return &ffcli.Command{
		Name:       "replay",
		Exec:       args.exec,
		ShortUsage: "replay [flags]",
		ShortHelp:  "Capture a recorded stack walk and print the resolved frames",
		FlagSet:    set,
	}
}

func (cmd *replayCmd) exec(context.Context, []string) error {
	if cmd.fixturePath == "" {
		return errors.New("missing `-fixture`")
	}
	if cmd.pid < 0 {
		return fmt.Errorf("invalid `-pid` %d", cmd.pid)
	}
	if cmd.fromException && cmd.loadTracePath != "" {
		return errors.New("`-exception` and `-load-exception-trace` are exclusive")
	}
	cfg, err := cmd.global.setup()
	if err != nil {
		return err
	}
	fx, err := loadFixture(cmd.fixturePath)
	if err != nil {
		return err
	}
	env, err := fx.build(cfg, libpf.PID(cmd.pid))
	if err != nil {
		return fmt.Errorf("failed to prepare fixture: %w", err)
	}
	if cmd.fromException && env.exception == nil {
		return errors.New("fixture has no exception frames")
	}

	var saved *stacktrace.ExceptionTrace
	if cmd.loadTracePath != "" {
		var data []byte
		if data, err = readFile(cmd.loadTracePath); err != nil {
			return err
		}
		if saved, err = stacktrace.UnmarshalExceptionTrace(data, env.lookup); err != nil {
			return fmt.Errorf("failed to load exception trace: %w", err)
		}
	}

	p := newPipeline(cfg, env, nil)
	enc := json.NewEncoder(cmd.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	var trace *stacktrace.Trace
	for pass := 0; pass < max(cmd.passes, 1); pass++ {
		switch {
		case saved != nil:
			trace, err = p.collector.CaptureFromException(saved)
		case cmd.fromException:
			trace, err = p.collector.CaptureFromException(env.exception)
		default:
			trace, err = p.collector.Capture(env, cmd.count)
		}
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"pass":      pass,
			"frames":    len(trace.Frames),
			"truncated": trace.Truncated,
		}).Debug("Captured trace")
		if err = enc.Encode(newReplayOutput(trace)); err != nil {
			return err
		}
	}

	if cmd.saveTracePath != "" {
		et := &stacktrace.ExceptionTrace{}
		et.AppendTrace(trace)
		data, err := et.MarshalBinary()
		if err != nil {
			return err
		}
		if err = writeFile(cmd.saveTracePath, data); err != nil {
			return fmt.Errorf("failed to save exception trace: %w", err)
		}
	}

	reportMetrics(p.getAndResetMetrics())
	return nil
}

func newReplayOutput(trace *stacktrace.Trace) *replayOutput {
	out := &replayOutput{
		Frames:    make([]string, 0, len(trace.Frames)),
		Truncated: trace.Truncated,
	}
	for i, f := range trace.Frames {
		out.Frames = append(out.Frames, f.String())
		if trace.IsLastFrameFromForeignStackTrace(i) {
			out.ForeignBoundaries = append(out.ForeignBoundaries, i)
		}
	}
	for _, m := range trace.DynamicMethods {
		out.DynamicMethods = append(out.DynamicMethods, m.String())
	}
	return out
}
