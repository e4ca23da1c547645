package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"wasc/internal/layout"
	"wasc/internal/project"
	"wasc/internal/rt"
)

// buildFlags carries the raw flag state of one invocation. The Set
// booleans distinguish an explicit zero from an unset flag so defaults
// can fall through to the manifest.
type buildFlags struct {
	Out        string
	GC         string
	GCSet      bool
	EmitWAT    bool
	EmitMap    bool
	Initial    uint32
	InitialSet bool
	Max        uint32
	MaxSet     bool
	Jobs       int
	NoCache    bool
}

// buildSettings is the resolved plan for one build: where the pack comes
// from, how to compile it, and where the artifacts land.
type buildSettings struct {
	PackPath string
	OutPath  string
	Strategy rt.Strategy
	Target   layout.Target
	MinPages uint32
	MaxPages uint32
	Jobs     int
	EmitWAT  bool
	EmitMap  bool
	NoCache  bool
}

// resolveBuild merges flags over the manifest. A flag wins wherever both
// speak; the pack argument beats the manifest entry; bool emit flags can
// only add to what the manifest requests.
func resolveBuild(fl buildFlags, m *project.Manifest, arg string) (buildSettings, error) {
	var s buildSettings

	s.PackPath = arg
	if s.PackPath == "" && m != nil {
		s.PackPath = m.EntryPath()
	}
	if s.PackPath == "" {
		return s, fmt.Errorf("no input: pass a program pack or set [package].entry in %s", project.ManifestName)
	}

	switch {
	case fl.GCSet:
		strategy, err := rt.ParseStrategy(fl.GC)
		if err != nil {
			return s, err
		}
		s.Strategy = strategy
	case m != nil && m.Config.Runtime.GC != "":
		s.Strategy = rt.Strategy(m.Config.Runtime.GC)
	}

	s.Target = layout.Wasm32()
	if m != nil && m.Config.Target.MaxAlign != 0 {
		s.Target.MaxAlign = m.Config.Target.MaxAlign
	}

	if fl.InitialSet {
		s.MinPages = fl.Initial
	} else if m != nil {
		s.MinPages = m.Config.Target.InitialPages
	}
	if fl.MaxSet {
		s.MaxPages = fl.Max
	} else if m != nil {
		s.MaxPages = m.Config.Target.MaxPages
	}
	if s.MaxPages != 0 && s.MinPages > s.MaxPages {
		return s, fmt.Errorf("initial pages %d exceed max pages %d", s.MinPages, s.MaxPages)
	}

	s.Jobs = fl.Jobs
	s.NoCache = fl.NoCache
	s.EmitWAT = fl.EmitWAT
	s.EmitMap = fl.EmitMap
	if m != nil {
		s.EmitWAT = s.EmitWAT || m.Config.Output.WAT
		s.EmitMap = s.EmitMap || m.Config.Output.NameMap
	}

	s.OutPath = fl.Out
	if s.OutPath == "" {
		if m != nil {
			s.OutPath = filepath.Join(m.OutputDir(), m.Config.Package.Name+".wasm")
		} else {
			s.OutPath = withExt(s.PackPath, ".wasm")
		}
	}
	return s, nil
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
