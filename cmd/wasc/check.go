package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wasc/internal/observ"
	"wasc/internal/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [pack]",
	Short: "Check a program pack without writing anything",
	Long:  "Run resolution, intrinsic checking and memory layout on a program pack and report diagnostics. No files are written and no code is generated.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  checkExecution,
}

func init() {
	checkCmd.Flags().String("gc", "", "reclamation strategy (rc|trace|none)")
	checkCmd.Flags().Int("jobs", 0, "max parallel checking workers (0 = auto)")
}

func checkExecution(cmd *cobra.Command, args []string) error {
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

	gc, err := cmd.Flags().GetString("gc")
	if err != nil {
		return fmt.Errorf("failed to get gc flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
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
	settings, err := resolveBuild(buildFlags{GC: gc, GCSet: cmd.Flags().Changed("gc"), Jobs: jobs}, manifest, arg)
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
	res, err := pipeline.Run(cmd.Context(), prog, pipeline.Options{
		Strategy:       settings.Strategy,
		Target:         settings.Target,
		MinPages:       settings.MinPages,
		MaxPages:       settings.MaxPages,
		Jobs:           settings.Jobs,
		MaxDiagnostics: maxDiagnostics,
		CheckOnly:      true,
		Timer:          timer,
	})
	if res != nil {
		res.Bag.Sort()
		res.Bag.Dedup()
	}
	if err != nil {
		if res != nil {
			printDiagnostics(os.Stdout, res.Bag, prog)
		}
		return err
	}

	errs, warns := printDiagnostics(os.Stdout, res.Bag, prog)
	if timer != nil {
		fmt.Fprint(os.Stdout, timer.Summary())
	}
	if errs > 0 {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return fmt.Errorf("") // diagnostics already printed
	}
	if warns > 0 {
		fmt.Fprintf(os.Stdout, "ok with %d warnings: %d functions, %d classes, %d globals\n",
			warns, len(res.Checked.Funcs), len(res.Checked.Classes), len(res.Checked.Globals))
	} else {
		fmt.Fprintf(os.Stdout, "ok: %d functions, %d classes, %d globals\n",
			len(res.Checked.Funcs), len(res.Checked.Classes), len(res.Checked.Globals))
	}
	return nil
}
