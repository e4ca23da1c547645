package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wasc/internal/trace"
)

// setupTracing reads the --trace flag and attaches a stderr event stream
// to the command context. The returned cleanup flushes the stream.
func setupTracing(cmd *cobra.Command) (func(), error) {
	levelStr, err := cmd.Root().PersistentFlags().GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}

	tracer := trace.NewStream(os.Stderr, level)
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
	}
	return cleanup, nil
}
