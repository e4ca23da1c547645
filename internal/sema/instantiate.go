package sema

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"wasc/internal/ast"
	"wasc/internal/types"
)

// InstID identifies one specialization of a generic function.
type InstID uint32

// NoInstID marks plain (non-generic) bodies in BodyKey.
const NoInstID InstID = 0

// InstKey is the comparable dedup key. Go maps cannot key on slices, so
// the normalized type arguments are flattened into ArgsKey; the slice
// itself lives in Instance.
type InstKey struct {
	Func    ast.FuncID
	ArgsKey string
}

// Instance is one interned specialization.
type Instance struct {
	ID   InstID
	Func ast.FuncID
	Args []types.TypeID
}

func typeArgsKey(args []types.TypeID) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte('#')
		}
		b.WriteString(strconv.FormatUint(uint64(arg), 10))
	}
	return b.String()
}

// InstSet is the instantiation cache. Bodies are checked in parallel, so
// callers racing to specialize the same (function, type arguments) tuple
// must observe the identical instance; the mutex plus key dedup gives that.
type InstSet struct {
	mu    sync.Mutex
	byKey map[InstKey]InstID
	all   []Instance
}

func NewInstSet() *InstSet {
	return &InstSet{byKey: make(map[InstKey]InstID)}
}

// Intern returns the instance for the tuple, creating it on first use.
// created reports whether this call added it.
func (s *InstSet) Intern(fn ast.FuncID, args []types.TypeID) (id InstID, created bool) {
	key := InstKey{Func: fn, ArgsKey: typeArgsKey(args)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[key]; ok {
		return id, false
	}
	id = InstID(len(s.all) + 1)
	s.all = append(s.all, Instance{ID: id, Func: fn, Args: slices.Clone(args)})
	s.byKey[key] = id
	return id, true
}

// Get returns a copy of the instance. The zero Instance means unknown ID.
func (s *InstSet) Get(id InstID) Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == NoInstID || int(id) > len(s.all) {
		return Instance{}
	}
	inst := s.all[id-1]
	inst.Args = slices.Clone(inst.Args)
	return inst
}

// Len counts interned instances.
func (s *InstSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.all)
}

// Ordered returns all instances sorted by (function, type arguments).
// Parallel checking makes insertion order nondeterministic; everything
// that iterates instances goes through this.
func (s *InstSet) Ordered() []Instance {
	s.mu.Lock()
	out := make([]Instance, len(s.all))
	for i, inst := range s.all {
		out[i] = inst
		out[i].Args = slices.Clone(inst.Args)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Func != out[j].Func {
			return out[i].Func < out[j].Func
		}
		a, b := out[i].Args, out[j].Args
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return out
}
