package main

import (
	"fmt"
	"os"

	"wasc/internal/ast"
	"wasc/internal/project"
)

// findManifest looks for wasc.toml from the working directory upward. A
// missing manifest is not an error; a malformed one is.
func findManifest() (*project.Manifest, error) {
	path, ok, err := project.Find(".")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return project.Load(path)
}

// loadPack reads and decodes one encoded program pack.
func loadPack(path string) (*ast.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pack: %w", err)
	}
	defer f.Close()
	prog, err := ast.DecodeProgram(f)
	if err != nil {
		return nil, fmt.Errorf("decode pack %s: %w", path, err)
	}
	return prog, nil
}
