// Package project reads the wasc.toml build manifest and provides the
// content digests the artifact cache keys on.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"wasc/internal/rt"
)

// ManifestName is the file the manifest search looks for.
const ManifestName = "wasc.toml"

// Config is the decoded manifest. Zero values mean "not set"; the CLI
// layers its flags on top.
type Config struct {
	Package PackageConfig `toml:"package"`
	Target  TargetConfig  `toml:"target"`
	Runtime RuntimeConfig `toml:"runtime"`
	Output  OutputConfig  `toml:"output"`
}

// PackageConfig names the package and its default program pack.
type PackageConfig struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// TargetConfig sizes linear memory and caps field alignment.
type TargetConfig struct {
	InitialPages uint32 `toml:"initial_pages"`
	MaxPages     uint32 `toml:"max_pages"`
	MaxAlign     uint32 `toml:"max_align"`
}

// RuntimeConfig picks the reclamation strategy lowered code cooperates
// with.
type RuntimeConfig struct {
	GC string `toml:"gc"`
}

// OutputConfig controls where artifacts land and which side outputs are
// written.
type OutputConfig struct {
	Dir     string `toml:"dir"`
	WAT     bool   `toml:"wat"`
	NameMap bool   `toml:"name_map"`
}

// Manifest couples a validated config with where it was found.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Find walks from startDir toward the filesystem root looking for a
// manifest. ok is false when none exists on the way up.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load decodes and validates one manifest file.
func Load(path string) (*Manifest, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("package") {
		return nil, fmt.Errorf("%s: missing [package]", path)
	}
	if !meta.IsDefined("package", "name") || strings.TrimSpace(cfg.Package.Name) == "" {
		return nil, fmt.Errorf("%s: missing [package].name", path)
	}
	if meta.IsDefined("runtime", "gc") {
		if _, err := rt.ParseStrategy(cfg.Runtime.GC); err != nil {
			return nil, fmt.Errorf("%s: [runtime].gc: %w", path, err)
		}
	}
	if meta.IsDefined("target", "max_align") {
		switch cfg.Target.MaxAlign {
		case 1, 2, 4, 8:
		default:
			return nil, fmt.Errorf("%s: [target].max_align must be 1, 2, 4 or 8, got %d",
				path, cfg.Target.MaxAlign)
		}
	}
	if meta.IsDefined("target", "initial_pages") && meta.IsDefined("target", "max_pages") &&
		cfg.Target.MaxPages != 0 && cfg.Target.InitialPages > cfg.Target.MaxPages {
		return nil, fmt.Errorf("%s: [target].initial_pages %d exceeds max_pages %d",
			path, cfg.Target.InitialPages, cfg.Target.MaxPages)
	}
	return &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}, nil
}

// EntryPath resolves [package].entry against the manifest's directory.
// Empty when the manifest does not name one.
func (m *Manifest) EntryPath() string {
	entry := strings.TrimSpace(m.Config.Package.Entry)
	if entry == "" {
		return ""
	}
	return filepath.Join(m.Root, filepath.FromSlash(entry))
}

// OutputDir resolves [output].dir against the manifest's directory,
// defaulting to the directory itself.
func (m *Manifest) OutputDir() string {
	dir := strings.TrimSpace(m.Config.Output.Dir)
	if dir == "" {
		return m.Root
	}
	return filepath.Join(m.Root, filepath.FromSlash(dir))
}
