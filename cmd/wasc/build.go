package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"wasc/internal/driver"
	"wasc/internal/link"
	"wasc/internal/observ"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [pack]",
	Short: "Compile a program pack to a wasm module",
	Long:  "Compile a program pack to a wasm module, using wasc.toml for defaults when present.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  buildExecution,
}

func init() {
	buildCmd.Flags().StringP("output", "o", "", "output path for the module")
	buildCmd.Flags().String("gc", "", "reclamation strategy (rc|trace|none)")
	buildCmd.Flags().Bool("emit-wat", false, "write a disassembly next to the module")
	buildCmd.Flags().Bool("emit-map", false, "write a function name map next to the module")
	buildCmd.Flags().Uint32("initial-pages", 0, "initial linear memory size in pages")
	buildCmd.Flags().Uint32("max-pages", 0, "linear memory growth cap in pages (0 = unbounded)")
	buildCmd.Flags().Int("jobs", 0, "max parallel lowering workers (0 = auto)")
	buildCmd.Flags().Bool("no-cache", false, "compile from scratch, skipping the artifact cache")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	if err := setupColor(cmd); err != nil {
		return err
	}
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	fl, err := readBuildFlags(cmd)
	if err != nil {
		return err
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	manifest, err := findManifest()
	if err != nil {
		return err
	}
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	settings, err := resolveBuild(fl, manifest, arg)
	if err != nil {
		return err
	}
	prog, err := loadPack(settings.PackPath)
	if err != nil {
		return err
	}

	var timer *observ.Timer
	if showTimings {
		timer = observ.NewTimer()
	}
	var cache *driver.Cache
	if !settings.NoCache {
		// A broken cache never blocks a build.
		if dir, dirErr := driver.DefaultCacheDir("wasc"); dirErr == nil {
			cache, _ = driver.OpenCache(dir)
		}
	}

	res, err := driver.Compile(cmd.Context(), driver.Request{
		Prog:           prog,
		Strategy:       settings.Strategy,
		Target:         settings.Target,
		MinPages:       settings.MinPages,
		MaxPages:       settings.MaxPages,
		Jobs:           settings.Jobs,
		MaxDiagnostics: maxDiagnostics,
		EmitWAT:        settings.EmitWAT,
		EmitNameMap:    settings.EmitMap,
		Cache:          cache,
		Timer:          timer,
	})
	if err != nil {
		if res != nil {
			printDiagnostics(os.Stdout, res.Bag, prog)
		}
		return err
	}

	errs, _ := printDiagnostics(os.Stdout, res.Bag, prog)
	if errs > 0 {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return fmt.Errorf("") // diagnostics already printed
	}

	if err := writeArtifacts(settings, res.Artifacts); err != nil {
		return err
	}
	if timer != nil {
		fmt.Fprint(os.Stdout, timer.Summary())
	}
	if res.CacheHit {
		fmt.Fprintf(os.Stdout, "built %s (cached)\n", settings.OutPath)
	} else {
		fmt.Fprintf(os.Stdout, "built %s\n", settings.OutPath)
	}
	return nil
}

func readBuildFlags(cmd *cobra.Command) (buildFlags, error) {
	var fl buildFlags
	var err error
	fl.Out, err = cmd.Flags().GetString("output")
	if err != nil {
		return fl, fmt.Errorf("failed to get output flag: %w", err)
	}
	fl.GC, err = cmd.Flags().GetString("gc")
	if err != nil {
		return fl, fmt.Errorf("failed to get gc flag: %w", err)
	}
	fl.EmitWAT, err = cmd.Flags().GetBool("emit-wat")
	if err != nil {
		return fl, fmt.Errorf("failed to get emit-wat flag: %w", err)
	}
	fl.EmitMap, err = cmd.Flags().GetBool("emit-map")
	if err != nil {
		return fl, fmt.Errorf("failed to get emit-map flag: %w", err)
	}
	fl.Initial, err = cmd.Flags().GetUint32("initial-pages")
	if err != nil {
		return fl, fmt.Errorf("failed to get initial-pages flag: %w", err)
	}
	fl.Max, err = cmd.Flags().GetUint32("max-pages")
	if err != nil {
		return fl, fmt.Errorf("failed to get max-pages flag: %w", err)
	}
	fl.Jobs, err = cmd.Flags().GetInt("jobs")
	if err != nil {
		return fl, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	fl.NoCache, err = cmd.Flags().GetBool("no-cache")
	if err != nil {
		return fl, fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	fl.GCSet = cmd.Flags().Changed("gc")
	fl.InitialSet = cmd.Flags().Changed("initial-pages")
	fl.MaxSet = cmd.Flags().Changed("max-pages")
	return fl, nil
}

func writeArtifacts(s buildSettings, art driver.Artifacts) error {
	if dir := filepath.Dir(s.OutPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(s.OutPath, art.Module, 0o644); err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	if s.EmitWAT {
		if err := os.WriteFile(withExt(s.OutPath, ".wat"), []byte(art.WAT), 0o644); err != nil {
			return fmt.Errorf("write wat: %w", err)
		}
	}
	if s.EmitMap {
		if err := os.WriteFile(withExt(s.OutPath, ".map"), []byte(link.FormatNameMap(art.NameMap)), 0o644); err != nil {
			return fmt.Errorf("write name map: %w", err)
		}
	}
	return nil
}
