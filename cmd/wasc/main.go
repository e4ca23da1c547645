// Package main implements the wasc CLI.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wasc/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "wasc",
	Short: "wasc ahead-of-time compiler",
	Long:  "wasc compiles checked program packs into wasm modules with a linear-memory object layout.",
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("timings", false, "show per-stage timing information")
	rootCmd.PersistentFlags().Int("max-diagnostics", 256, "maximum number of diagnostics to report")
	rootCmd.PersistentFlags().String("trace", "off", "trace compilation to stderr (off|phase|detail)")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to this path")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to this path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// setupColor maps the --color flag onto the process-wide color switch.
func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("unsupported color mode: %s (supported: auto, on, off)", mode)
	}
	return nil
}
