package driver

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"wasc/internal/link"
	"wasc/internal/project"
)

// cacheSchemaVersion invalidates every stored entry when the payload
// shape changes.
const cacheSchemaVersion uint16 = 1

// cachePayload is the msgpack form of one cached compilation. Only clean
// builds are stored; diagnostics never round-trip through the cache.
type cachePayload struct {
	Schema  uint16
	Module  []byte
	WAT     string
	NameMap []link.NameEntry
}

// Cache is a content-addressed artifact store on disk. Safe for
// concurrent use; a nil *Cache is a valid no-op cache.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// OpenCache initializes a cache rooted at dir, creating it as needed.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// DefaultCacheDir returns the conventional per-user cache location for
// app: $XDG_CACHE_HOME/app, or ~/.cache/app.
func DefaultCacheDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

func (c *Cache) pathFor(key project.Digest) string {
	return filepath.Join(c.dir, "obj", hex.EncodeToString(key[:])+".mp")
}

// Put stores a payload under key, replacing atomically so a concurrent
// reader never sees a half-written entry.
func (c *Cache) Put(key project.Digest, payload *cachePayload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get loads the payload stored under key. A missing entry and a stale
// schema are both misses, not errors.
func (c *Cache) Get(key project.Digest) (*cachePayload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	var out cachePayload
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, err
	}
	if out.Schema != cacheSchemaVersion {
		return nil, false, nil
	}
	return &out, true, nil
}

// Drop discards every entry. The directory is renamed aside first so
// concurrent readers fall back to misses instead of partial reads.
func (c *Cache) Drop() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}
