// Package manifest implements the per-identity path→anchor-chunk-id mapping
// (§3 Manifest, §6 manifest.json) with the write-tmp/fsync/rename atomic
// persistence discipline the original source uses for its own on-disk
// manifest. Grounded on
// internal/drivers/storage/local_store.go's (NasServer, consulted as
// secondary reference) "rename into place after writing" move pattern,
// extended with an explicit Sync before rename since manifest.json is the
// single source of truth for every file a user has written — losing it to
// an unflushed page cache after a crash is the failure this exists to
// prevent.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

// Manifest is the concurrency-safe path→cid table for one identity,
// persisted to a single JSON file under an atomic-rewrite discipline
// (§6: "rewritten atomically (write to manifest.json.tmp, fsync, rename)").
type Manifest struct {
	mu    sync.RWMutex
	path  string
	paths map[string]ids.ContentId
}

type onDiskRecord struct {
	Paths map[string]string `json:"paths"`
}

// New returns an empty Manifest that will persist to path.
func New(path string) *Manifest {
	return &Manifest{path: path, paths: make(map[string]ids.ContentId)}
}

// Load reads a Manifest from path, returning an empty Manifest if the file
// does not yet exist.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}

	var rec onDiskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", path, err)
	}

	m := New(path)
	for p, hex := range rec.Paths {
		cid, err := ids.Parse(hex)
		if err != nil {
			return nil, fmt.Errorf("manifest: decode entry %q: %w", p, err)
		}
		m.paths[p] = cid
	}
	return m, nil
}

// Put records path → cid, overwriting any existing entry for path, and
// persists the manifest. The cid is the file's chain anchor; fileengine
// records the last chunk sealed, from which Read walks backwards.
// Paths are opaque UTF-8 strings; uniqueness within a manifest is a
// consequence of using them as map keys.
func (m *Manifest) Put(path string, cid ids.ContentId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[path] = cid
	return m.persistLocked()
}

// Get returns the anchor chunk content id recorded for path, or NotFound.
func (m *Manifest) Get(path string) (ids.ContentId, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cid, ok := m.paths[path]
	if !ok {
		return ids.ContentId{}, engine.ErrNotFound
	}
	return cid, nil
}

// Delete removes path's entry and persists the manifest (§4.H Delete:
// "Remove the manifest entry").
func (m *Manifest) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.paths[path]; !ok {
		return engine.ErrNotFound
	}
	delete(m.paths, path)
	return m.persistLocked()
}

// Paths returns every path currently recorded, in no particular order.
func (m *Manifest) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.paths))
	for p := range m.paths {
		out = append(out, p)
	}
	return out
}

// persistLocked writes the manifest to m.path via write-tmp/fsync/rename.
// Caller must hold m.mu for writing.
func (m *Manifest) persistLocked() error {
	rec := onDiskRecord{Paths: make(map[string]string, len(m.paths))}
	for p, cid := range m.paths {
		rec.Paths[p] = cid.String()
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("manifest: create %s: %w", dir, err)
	}

	tmpPath := m.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("manifest: open %s: %w", tmpPath, err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("manifest: write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("manifest: fsync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("manifest: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("manifest: rename %s to %s: %w", tmpPath, m.path, err)
	}
	return nil
}
