package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/source"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	infoColor = color.New(color.FgCyan)
)

// printDiagnostics renders the bag one line per diagnostic,
//
//	<path>:<start>-<end>: <SEVERITY> <CODE>: <message>
//
// with notes indented underneath. Spans are byte offsets into files the
// compiler never read, so there is no source line to quote. Returns the
// error and warning counts.
func printDiagnostics(w io.Writer, bag *diag.Bag, prog *ast.Program) (errs, warns int) {
	if bag == nil {
		return 0, 0
	}
	for _, d := range bag.Items() {
		switch d.Severity {
		case diag.SevError:
			errs++
		case diag.SevWarning:
			warns++
		}
		fmt.Fprintf(w, "%s%s %s: %s\n", location(prog, d.Primary), severityLabel(d.Severity), d.Code.ID(), d.Message)
		for _, n := range d.Notes {
			fmt.Fprintf(w, "    note: %s%s\n", location(prog, n.Span), n.Msg)
		}
	}
	return errs, warns
}

// location renders "path:start-end: ", or nothing for span-less
// diagnostics such as address-space exhaustion.
func location(prog *ast.Program, sp source.Span) string {
	if sp.Empty() {
		return ""
	}
	path := fmt.Sprintf("file#%d", sp.File)
	if prog != nil && prog.Files.Has(sp.File) {
		path = prog.Files.Get(sp.File).Path
	}
	return fmt.Sprintf("%s:%d-%d: ", path, sp.Start, sp.End)
}

func severityLabel(sev diag.Severity) string {
	switch sev {
	case diag.SevError:
		return errColor.Sprint(sev.String())
	case diag.SevWarning:
		return warnColor.Sprint(sev.String())
	}
	return infoColor.Sprint(sev.String())
}
