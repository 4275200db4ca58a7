package fileengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

// ChunkDescriptor records where one chunk envelope's erasure shards and
// their secret shares were dispersed, so Read can reconstruct a chunk
// whose envelope bytes are no longer directly available (§4.H Read step 3:
// "for each shard index of this chunk, as recorded in the chunk
// descriptor"). It is local bookkeeping, not a content-addressed block: two
// identical envelopes dispersed independently would carry different
// descriptors if, say, a different K/M were used.
type ChunkDescriptor struct {
	ChunkID      ids.ContentId
	PrevChunkID  *ids.ContentId
	ShardIDs     []ids.ContentId   // K+M entries, in shard-index order
	ShareIDsByShard [][]ids.ContentId // per shard, N share ids in share-index order
}

type onDiskDescriptor struct {
	ChunkID     string     `json:"chunk_id"`
	PrevChunkID string     `json:"prev_chunk_id,omitempty"`
	ShardIDs    []string   `json:"shard_ids"`
	ShareIDs    [][]string `json:"share_ids_by_shard"`
}

// descriptorStore is the per-identity chunk_id -> ChunkDescriptor table,
// persisted alongside manifest.json under the same write-tmp/fsync/rename
// discipline (§6: "pins.json ... same atomic-rewrite discipline" — this
// file plays the analogous role for chunk dispersal metadata).
type descriptorStore struct {
	mu      sync.RWMutex
	path    string
	entries map[ids.ContentId]ChunkDescriptor
}

func newDescriptorStore(path string) *descriptorStore {
	return &descriptorStore{path: path, entries: make(map[ids.ContentId]ChunkDescriptor)}
}

func loadDescriptorStore(path string) (*descriptorStore, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newDescriptorStore(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fileengine: read %s: %w", path, err)
	}

	var recs []onDiskDescriptor
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("fileengine: decode %s: %w", path, err)
	}

	s := newDescriptorStore(path)
	for _, rec := range recs {
		desc, err := decodeDescriptor(rec)
		if err != nil {
			return nil, err
		}
		s.entries[desc.ChunkID] = desc
	}
	return s, nil
}

func decodeDescriptor(rec onDiskDescriptor) (ChunkDescriptor, error) {
	chunkID, err := ids.Parse(rec.ChunkID)
	if err != nil {
		return ChunkDescriptor{}, fmt.Errorf("fileengine: decode descriptor chunk id: %w", err)
	}
	desc := ChunkDescriptor{ChunkID: chunkID}
	if rec.PrevChunkID != "" {
		prev, err := ids.Parse(rec.PrevChunkID)
		if err != nil {
			return ChunkDescriptor{}, fmt.Errorf("fileengine: decode descriptor prev chunk id: %w", err)
		}
		desc.PrevChunkID = &prev
	}
	desc.ShardIDs = make([]ids.ContentId, len(rec.ShardIDs))
	for i, hex := range rec.ShardIDs {
		cid, err := ids.Parse(hex)
		if err != nil {
			return ChunkDescriptor{}, fmt.Errorf("fileengine: decode descriptor shard id: %w", err)
		}
		desc.ShardIDs[i] = cid
	}
	desc.ShareIDsByShard = make([][]ids.ContentId, len(rec.ShareIDs))
	for i, shareHexes := range rec.ShareIDs {
		shareIDs := make([]ids.ContentId, len(shareHexes))
		for j, hex := range shareHexes {
			cid, err := ids.Parse(hex)
			if err != nil {
				return ChunkDescriptor{}, fmt.Errorf("fileengine: decode descriptor share id: %w", err)
			}
			shareIDs[j] = cid
		}
		desc.ShareIDsByShard[i] = shareIDs
	}
	return desc, nil
}

// Put records desc, overwriting any prior descriptor for the same chunk id.
func (s *descriptorStore) Put(desc ChunkDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[desc.ChunkID] = desc
	return s.persistLocked()
}

// Get returns the descriptor for chunkID, or NotFound.
func (s *descriptorStore) Get(chunkID ids.ContentId) (ChunkDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.entries[chunkID]
	if !ok {
		return ChunkDescriptor{}, engine.ErrNotFound
	}
	return desc, nil
}

// Delete removes chunkID's descriptor, if any. Missing entries are not an
// error: Delete is part of best-effort teardown.
func (s *descriptorStore) Delete(chunkID ids.ContentId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[chunkID]; !ok {
		return nil
	}
	delete(s.entries, chunkID)
	return s.persistLocked()
}

func (s *descriptorStore) persistLocked() error {
	recs := make([]onDiskDescriptor, 0, len(s.entries))
	for _, desc := range s.entries {
		rec := onDiskDescriptor{
			ChunkID:  desc.ChunkID.String(),
			ShardIDs: make([]string, len(desc.ShardIDs)),
			ShareIDs: make([][]string, len(desc.ShareIDsByShard)),
		}
		if desc.PrevChunkID != nil {
			rec.PrevChunkID = desc.PrevChunkID.String()
		}
		for i, cid := range desc.ShardIDs {
			rec.ShardIDs[i] = cid.String()
		}
		for i, shareIDs := range desc.ShareIDsByShard {
			hexes := make([]string, len(shareIDs))
			for j, cid := range shareIDs {
				hexes[j] = cid.String()
			}
			rec.ShareIDs[i] = hexes
		}
		recs = append(recs, rec)
	}

	raw, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("fileengine: encode descriptors: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fileengine: create %s: %w", dir, err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fileengine: open %s: %w", tmpPath, err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("fileengine: write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fileengine: fsync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("fileengine: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("fileengine: rename %s to %s: %w", tmpPath, s.path, err)
	}
	return nil
}
