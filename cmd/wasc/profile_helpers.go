package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wasc/internal/prof"
)

// setupProfiling inspects the persistent profiling flags and enables the
// corresponding profilers. The returned cleanup is safe to call more than
// once.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	root := cmd.Root()

	cpuProfile, err := root.PersistentFlags().GetString("cpu-profile")
	if err != nil {
		return nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	memProfile, err := root.PersistentFlags().GetString("mem-profile")
	if err != nil {
		return nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}

	stopCPU := func() {}
	writeMem := func() {}

	if cpuProfile != "" {
		if err := prof.StartCPU(cpuProfile); err != nil {
			return nil, err
		}
		stopCPU = prof.StopCPU
	}
	if memProfile != "" {
		writeMem = func() {
			if err := prof.WriteHeap(memProfile); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
		}
	}

	cleaned := false
	cleanup := func() {
		if cleaned {
			return
		}
		cleaned = true
		stopCPU()
		writeMem()
	}
	return cleanup, nil
}
