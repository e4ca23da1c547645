package source

import (
	"crypto/sha256"
	"fmt"

	"fortio.org/safecast"
)

// FileID uniquely identifies a source file within a Table.
type FileID uint32

// File describes one front-end source file. The compiler never sees the
// text itself: Path names the file in diagnostics and the name map, Hash
// keys build artifacts.
type File struct {
	ID      FileID
	Path    string
	Hash    [32]byte
	Size    uint32
	Virtual bool // added from memory (test, generated input) rather than named by a front end
}

// Table is the per-program file table. Spans refer into it by FileID.
type Table struct {
	files []File
	index map[string]FileID // path -> latest id
}

func NewTable() *Table {
	return &Table{
		files: make([]File, 0),
		index: make(map[string]FileID),
	}
}

// Add registers a file and returns a fresh FileID. Re-adding a path keeps
// the old entry valid; the index tracks the latest one.
func (t *Table) Add(path string, hash [32]byte, size uint32) FileID {
	return t.add(path, hash, size, false)
}

// AddVirtual registers an in-memory file and hashes the content itself.
func (t *Table) AddVirtual(name string, content []byte) FileID {
	size, err := safecast.Conv[uint32](len(content))
	if err != nil {
		panic(fmt.Errorf("virtual file size overflow: %w", err))
	}
	return t.add(name, sha256.Sum256(content), size, true)
}

func (t *Table) add(path string, hash [32]byte, size uint32, virtual bool) FileID {
	lenFiles, err := safecast.Conv[uint32](len(t.files))
	if err != nil {
		panic(fmt.Errorf("file table overflow: %w", err))
	}
	id := FileID(lenFiles)
	t.files = append(t.files, File{
		ID:      id,
		Path:    path,
		Hash:    hash,
		Size:    size,
		Virtual: virtual,
	})
	t.index[path] = id
	return id
}

// AddFile re-registers a file record verbatim, assigning the next ID. The
// wire decoder uses it to rebuild a table entry by entry.
func (t *Table) AddFile(f File) FileID {
	lenFiles, err := safecast.Conv[uint32](len(t.files))
	if err != nil {
		panic(fmt.Errorf("file table overflow: %w", err))
	}
	f.ID = FileID(lenFiles)
	t.files = append(t.files, f)
	t.index[f.Path] = f.ID
	return f.ID
}

// Get returns the file metadata for the given ID.
func (t *Table) Get(id FileID) *File {
	return &t.files[id]
}

// Has reports whether id addresses a registered file.
func (t *Table) Has(id FileID) bool {
	return int(id) < len(t.files)
}

// Lookup returns the latest file ID registered under path.
func (t *Table) Lookup(path string) (FileID, bool) {
	id, ok := t.index[path]
	return id, ok
}

func (t *Table) Len() int {
	return len(t.files)
}
