package sema

import (
	"sync"
	"testing"

	"wasc/internal/ast"
	"wasc/internal/types"
)

func TestInstSetIntern(t *testing.T) {
	s := NewInstSet()
	a := []types.TypeID{3, 7}

	id1, created := s.Intern(2, a)
	if !created || id1 == NoInstID {
		t.Fatalf("first Intern: id=%d created=%v", id1, created)
	}
	id2, created := s.Intern(2, []types.TypeID{3, 7})
	if created || id2 != id1 {
		t.Fatalf("repeat Intern: id=%d created=%v, want %d reused", id2, created, id1)
	}
	id3, created := s.Intern(2, []types.TypeID{7, 3})
	if !created || id3 == id1 {
		t.Fatal("argument order must distinguish instances")
	}
	id4, created := s.Intern(9, a)
	if !created || id4 == id1 {
		t.Fatal("function must distinguish instances")
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
}

func TestInstSetArgsAreCopied(t *testing.T) {
	s := NewInstSet()
	args := []types.TypeID{5}
	id, _ := s.Intern(1, args)
	args[0] = 99

	if got := s.Get(id); got.Args[0] != 5 {
		t.Fatalf("interned args mutated: %v", got.Args)
	}
	inst := s.Get(id)
	inst.Args[0] = 42
	if got := s.Get(id); got.Args[0] != 5 {
		t.Fatal("Get must hand out copies")
	}
}

func TestInstSetGetUnknown(t *testing.T) {
	s := NewInstSet()
	if got := s.Get(NoInstID); got.ID != 0 {
		t.Errorf("Get(NoInstID) = %+v", got)
	}
	if got := s.Get(42); got.ID != 0 {
		t.Errorf("Get(42) = %+v", got)
	}
}

func TestInstSetOrdered(t *testing.T) {
	s := NewInstSet()
	s.Intern(4, []types.TypeID{9})
	s.Intern(2, []types.TypeID{8})
	s.Intern(2, []types.TypeID{3})
	s.Intern(2, []types.TypeID{3, 1})

	got := s.Ordered()
	want := []struct {
		fn   ast.FuncID
		args []types.TypeID
	}{
		{2, []types.TypeID{3}},
		{2, []types.TypeID{3, 1}},
		{2, []types.TypeID{8}},
		{4, []types.TypeID{9}},
	}
	if len(got) != len(want) {
		t.Fatalf("Ordered returned %d instances, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Func != w.fn || len(got[i].Args) != len(w.args) {
			t.Fatalf("position %d: %+v, want func %d args %v", i, got[i], w.fn, w.args)
		}
		for k, arg := range w.args {
			if got[i].Args[k] != arg {
				t.Fatalf("position %d: args %v, want %v", i, got[i].Args, w.args)
			}
		}
	}
}

func TestInstSetConcurrentIntern(t *testing.T) {
	s := NewInstSet()
	const workers = 8
	ids := make([]InstID, workers)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := s.Intern(1, []types.TypeID{6})
			ids[w] = id
		}()
	}
	wg.Wait()

	if s.Len() != 1 {
		t.Fatalf("Len = %d, want one shared instance", s.Len())
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatal("workers observed different instances for one tuple")
		}
	}
}
