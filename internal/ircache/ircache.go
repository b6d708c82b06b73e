// Package ircache persists lowered-module summaries on disk so unchanged
// inputs can skip re-lowering. Entries are msgpack payloads keyed by a
// sha256 content digest; the cache is safe for concurrent use.
package ircache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"quill/internal/ir"
	"quill/internal/types"
)

// schemaVersion invalidates every stored payload when the format changes.
const schemaVersion uint16 = 1

// Digest is a sha256 content hash.
type Digest [sha256.Size]byte

// Zero reports whether the digest is unset.
func (d Digest) Zero() bool {
	var z Digest
	return d == z
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// DigestBytes hashes raw input content.
func DigestBytes(data []byte) Digest {
	return sha256.Sum256(data)
}

// FuncSummary captures the shape of one lowered function: enough to
// answer "does the cached module still match" without storing bodies.
type FuncSummary struct {
	Name     string
	Type     string
	Blocks   int
	Values   int
	Indirect bool
}

// Summary is the cached description of one lowered module.
type Summary struct {
	Schema        uint16
	Module        string
	Funcs         []FuncSummary
	VTables       int
	WitnessTables int
	// Input is the digest of the source content the module was lowered
	// from; a mismatch means the entry is stale.
	Input Digest
}

// Summarize builds a deterministic summary of a lowered module. Functions
// are listed in name order.
func Summarize(m *ir.Module, in *types.Interner, input Digest) *Summary {
	s := &Summary{
		Schema:        schemaVersion,
		Module:        m.Name,
		VTables:       len(m.VTables),
		WitnessTables: len(m.WitnessTables),
		Input:         input,
	}
	names := make([]string, 0, len(m.FuncByName))
	for name := range m.FuncByName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := m.Funcs[m.FuncByName[name]]
		s.Funcs = append(s.Funcs, FuncSummary{
			Name:     name,
			Type:     in.Name(f.Type),
			Blocks:   len(f.Blocks),
			Values:   f.NumValues(),
			Indirect: f.Indirect,
		})
	}
	return s
}

// Fresh reports whether the summary was produced by this schema from the
// given input content.
func (s *Summary) Fresh(input Digest) bool {
	return s != nil && s.Schema == schemaVersion && s.Input == input
}

// Cache is a content-addressed disk store of Summary payloads.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes a cache under the platform cache directory, following
// XDG conventions.
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenAt(filepath.Join(base, app))
}

// OpenAt initializes a cache rooted at an explicit directory.
func OpenAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "qir", key.String()+".mp")
}

// Put writes a summary under its key. The write is atomic: a concurrent
// Get sees either the old payload or the new one, never a torn file.
func (c *Cache) Put(key Digest, s *Summary) error {
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
	tmp := f.Name()
	if err := msgpack.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

// Get reads the summary stored under key. A missing entry is (false, nil).
func (c *Cache) Get(key Digest, out *Summary) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// DropAll removes every cached entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "qir"))
}
