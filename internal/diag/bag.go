package diag

import (
	"fmt"
	"slices"
)

// Bag accumulates diagnostics up to a capacity limit. Phases keep reporting
// past the limit; extra entries are dropped so a runaway error cascade
// cannot exhaust memory.
type Bag struct {
	items []Diagnostic
	max   int
}

func NewBag(max int) *Bag {
	return &Bag{
		items: make([]Diagnostic, 0, max),
		max:   max,
	}
}

// Add appends d and reports whether it was kept.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= b.max {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() int {
	return b.max
}

// HasErrors reports whether at least one diagnostic is SevError.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether at least one diagnostic is SevWarning or worse.
func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the underlying slice. Callers must not modify it.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends all diagnostics from other, growing the capacity if needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	if total := len(b.items) + len(other.items); total > b.max {
		b.max = total
	}
	b.items = append(b.items, other.items...)
}

// Sort orders diagnostics by file, span, severity (errors first within a
// span), then code, so output is deterministic regardless of how many
// workers produced them.
func (b *Bag) Sort() {
	slices.SortStableFunc(b.items, func(di, dj Diagnostic) int {
		if di.Primary.File != dj.Primary.File {
			return int(di.Primary.File) - int(dj.Primary.File)
		}
		if di.Primary.Start != dj.Primary.Start {
			return int(di.Primary.Start) - int(dj.Primary.Start)
		}
		if di.Primary.End != dj.Primary.End {
			return int(di.Primary.End) - int(dj.Primary.End)
		}
		if di.Severity != dj.Severity {
			return int(dj.Severity) - int(di.Severity)
		}
		return int(di.Code) - int(dj.Code)
	})
}

// Dedup removes repeats with the same code and primary span, keeping the
// first occurrence.
func (b *Bag) Dedup() {
	seen := make(map[string]bool, len(b.items))
	kept := b.items[:0]
	for _, d := range b.items {
		key := fmt.Sprintf("%d:%s", d.Code, d.Primary.String())
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, d)
	}
	b.items = kept
}
