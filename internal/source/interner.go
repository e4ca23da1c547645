package source

import (
	"slices"
	"sync"
)

// StringID is a stable handle for an interned string.
type StringID uint32

const NoStringID StringID = 0

// Interner deduplicates identifier and literal strings behind stable IDs.
// Safe for concurrent use: generic specialization mints synthetic names
// from several lowering workers at once.
type Interner struct {
	mu    sync.RWMutex
	byID  []string            // byID[0] = "" for NoStringID
	index map[string]StringID
}

func NewInterner() *Interner {
	return &Interner{
		byID:  []string{""},
		index: map[string]StringID{"": 0},
	}
}

// Intern stores s and returns its ID, reusing the ID of an equal string.
func (in *Interner) Intern(s string) StringID {
	in.mu.RLock()
	id, ok := in.index[s]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[s]; ok {
		return id
	}
	// Own copy so the ID never aliases a caller-owned buffer.
	cpy := string([]byte(s))
	id = StringID(len(in.byID))
	in.byID = append(in.byID, cpy)
	in.index[cpy] = id
	return id
}

func (in *Interner) InternBytes(b []byte) StringID {
	return in.Intern(string(b))
}

// Lookup returns the string behind id, or "" and false for an unknown ID.
func (in *Interner) Lookup(id StringID) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(in.byID) {
		return "", false
	}
	return in.byID[id], true
}

// MustLookup returns the string behind id and panics on an unknown ID.
func (in *Interner) MustLookup(id StringID) string {
	s, ok := in.Lookup(id)
	if !ok {
		panic("invalid string ID")
	}
	return s
}

func (in *Interner) Has(id StringID) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return int(id) < len(in.byID)
}

// Len counts interned strings, NoStringID included.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byID)
}

// Snapshot returns a copy of every interned string, indexed by StringID.
func (in *Interner) Snapshot() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return slices.Clone(in.byID)
}
