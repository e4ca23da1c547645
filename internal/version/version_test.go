package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestStringCarriesOptionalFields(t *testing.T) {
	origCommit, origDate := GitCommit, BuildDate
	defer func() { GitCommit, BuildDate = origCommit, origDate }()

	GitCommit, BuildDate = "", ""
	if got := String(); got != "wasc "+Version {
		t.Errorf("bare String() = %q", got)
	}

	GitCommit, BuildDate = "abc123", "2026-08-22"
	got := String()
	if !strings.Contains(got, "abc123") || !strings.Contains(got, "2026-08-22") {
		t.Errorf("String() = %q, want commit and date", got)
	}

	GitCommit = ""
	if got := String(); !strings.Contains(got, "(2026-08-22)") {
		t.Errorf("date-only String() = %q", got)
	}
}

func TestColoredDegradesToPlain(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = orig }()

	if got := Colored(); got != Version {
		t.Errorf("Colored() with colors off = %q, want %q", got, Version)
	}
}

func TestColoredHandlesShortVersions(t *testing.T) {
	origVersion := Version
	defer func() { Version = origVersion }()

	Version = "weird"
	if got := Colored(); got != "weird" {
		t.Errorf("Colored() on a non-semver string = %q", got)
	}
}
