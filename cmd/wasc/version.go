package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wasc/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the wasc version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupColor(cmd); err != nil {
			return err
		}
		// Colored degrades to the plain triple when colors are off, so the
		// substitution is the identity there.
		fmt.Fprintln(cmd.OutOrStdout(), strings.Replace(version.String(), version.Version, version.Colored(), 1))
		return nil
	},
}
