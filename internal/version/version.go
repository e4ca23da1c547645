// Package version carries the build identity of the wasc CLI. The
// variables can be overridden at build time via -ldflags.
package version

import (
	"strings"

	"github.com/fatih/color"
)

var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// String renders the full identity in plain text.
func String() string {
	var sb strings.Builder
	sb.WriteString("wasc ")
	sb.WriteString(Version)
	if GitCommit != "" {
		sb.WriteString(" (")
		sb.WriteString(GitCommit)
		if BuildDate != "" {
			sb.WriteString(", ")
			sb.WriteString(BuildDate)
		}
		sb.WriteString(")")
	} else if BuildDate != "" {
		sb.WriteString(" (")
		sb.WriteString(BuildDate)
		sb.WriteString(")")
	}
	return sb.String()
}

// Colored paints the three version components for terminal output.
// color.NoColor turns it back into the plain string.
func Colored() string {
	parts := strings.SplitN(Version, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	return majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
}
