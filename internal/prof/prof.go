// Package prof connects Go's built-in profilers to CLI flags.
package prof

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

var cpuFile *os.File

// StartCPU begins CPU sampling into path. StopCPU must run before exit
// or the tail of the profile is lost.
func StartCPU(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("cpu profile: %w", err)
	}
	cpuFile = f
	return nil
}

// StopCPU flushes and closes an active CPU profile. Safe to call without
// a matching StartCPU.
func StopCPU() {
	pprof.StopCPUProfile()
	if cpuFile != nil {
		_ = cpuFile.Close()
		cpuFile = nil
	}
}

// WriteHeap records the live-object profile after one forced collection.
func WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("heap profile: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	return nil
}
