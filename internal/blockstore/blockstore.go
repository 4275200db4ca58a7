// Package blockstore implements component F: a content-addressed local
// store with deduplication via reference counting, four pin kinds, LRU
// eviction of Cache-pinned bytes under a byte budget, and garbage
// collection of unpinned or expired blocks. Grounded on
// internal/crypto/buffer_pool.go's single-mutex-guarded map-of-slices shape
// (kept: one lock protecting a map keyed by a fixed-size id, sized
// accounting on insert/evict), generalized from a pool of reusable buffers
// to a durable, ref-counted, multi-pin-kind block table per spec §4.F. The
// recency order for Cache pins is tracked with
// hashicorp/golang-lru/v2/simplelru rather than a hand-rolled list: its
// entry-count ceiling is set high enough to never itself trigger (eviction
// here is byte-budget-driven, not count-driven), and its eviction
// callback is where the cache-pin bookkeeping lives.
package blockstore

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

// PinKind classifies why a block is retained (§3 Pin).
type PinKind int

const (
	// PinUser marks a block as permanently retained until explicitly
	// unpinned to ref_count 0; never evicted by LRU or GC while pinned.
	PinUser PinKind = iota
	// PinCache marks a block as evictable under the configured byte
	// budget, least-recently-used first.
	PinCache
	// PinPaid marks a block retained until ExpiresAt, outside the cache
	// budget, as if held on behalf of a paying third party.
	PinPaid
	// PinTemporary marks a block retained until a mandatory ExpiresAt.
	PinTemporary
)

func (k PinKind) String() string {
	switch k {
	case PinUser:
		return "user"
	case PinCache:
		return "cache"
	case PinPaid:
		return "paid"
	case PinTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// Pin is one reason a block is retained.
type Pin struct {
	Kind      PinKind
	Owner     string
	RefCount  int
	ExpiresAt *time.Time
}

func (p Pin) expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

type entry struct {
	data      []byte
	pins      []Pin
	cachePinned bool
}

func (e *entry) size() int64 { return int64(len(e.data)) }

func (e *entry) hasLiveUserPin(now time.Time) bool {
	for _, p := range e.pins {
		if p.Kind == PinUser && p.RefCount > 0 {
			return true
		}
	}
	return false
}

func (e *entry) hasAnyLivePin(now time.Time) bool {
	for _, p := range e.pins {
		switch p.Kind {
		case PinUser, PinCache:
			if p.RefCount > 0 {
				return true
			}
		case PinPaid, PinTemporary:
			if p.RefCount > 0 && !p.expired(now) {
				return true
			}
		}
	}
	return false
}

// Stats summarizes store occupancy (§4.F stats()).
type Stats struct {
	BlocksByKind  map[string]int
	BytesByKind   map[string]int64
	BlocksTotal   int
	BytesStored   int64
	CacheBytes    int64
	MaxCacheBytes int64
}

// maxLRUEntries bounds simplelru's own count-based eviction far above any
// realistic number of distinct Cache-pinned blocks, so this store's
// byte-budget eviction is always what actually removes entries.
const maxLRUEntries = 1 << 24

// Store is the concurrency-safe content-addressed local block store.
type Store struct {
	mu            sync.Mutex
	blocks        map[ids.ContentId]*entry
	lru           *simplelru.LRU[ids.ContentId, int64]
	cacheBytes    int64
	maxCacheBytes int64
	now           func() time.Time
}

// New constructs an empty Store with the given cache byte budget.
func New(maxCacheBytes int64) *Store {
	s := &Store{
		blocks:        make(map[ids.ContentId]*entry),
		maxCacheBytes: maxCacheBytes,
		now:           time.Now,
	}
	lru, err := simplelru.NewLRU[ids.ContentId, int64](maxLRUEntries, s.onEvict)
	if err != nil {
		// Only returns an error for size <= 0, which maxLRUEntries never is.
		panic(err)
	}
	s.lru = lru
	return s
}

// onEvict is simplelru's removal callback; it only updates cache-byte
// accounting and entry state. The caller of Remove/RemoveOldest already
// holds s.mu.
func (s *Store) onEvict(cid ids.ContentId, size int64) {
	s.cacheBytes -= size
	e, ok := s.blocks[cid]
	if !ok {
		return
	}
	e.cachePinned = false
	kept := e.pins[:0]
	for _, p := range e.pins {
		if p.Kind != PinCache {
			kept = append(kept, p)
		}
	}
	e.pins = kept
	if !e.hasAnyLivePin(s.now()) {
		delete(s.blocks, cid)
	}
}

// Put stores bytes under their content id, or is a no-op if already
// present (§4.F put). Put alone does not create a pin; callers follow Put
// with Pin to make the block retained.
func (s *Store) Put(data []byte) ids.ContentId {
	cid := ids.Hash(data)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[cid]; ok {
		return cid
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blocks[cid] = &entry{data: cp}
	return cid
}

// Get returns the stored bytes for cid, touching its LRU position if the
// block carries a live Cache pin (§4.F get).
func (s *Store) Get(cid ids.ContentId) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.blocks[cid]
	if !ok {
		return nil, engine.ErrNotFound
	}
	if e.cachePinned {
		s.lru.Get(cid) // simplelru.Get promotes the key to most-recently-used
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Pin attaches a pin of kind to cid, incrementing ref_count if an
// identical (kind, owner) pin already exists (§4.F pin). expiresAt is
// required for Temporary pins.
func (s *Store) Pin(cid ids.ContentId, kind PinKind, owner string, expiresAt *time.Time) error {
	if kind == PinTemporary && expiresAt == nil {
		return engine.ErrCacheTooSmall // mandatory expiry missing; reuse as a config-mismatch signal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.blocks[cid]
	if !ok {
		return engine.ErrNotFound
	}

	for i := range e.pins {
		if e.pins[i].Kind == kind && e.pins[i].Owner == owner {
			e.pins[i].RefCount++
			if expiresAt != nil {
				e.pins[i].ExpiresAt = expiresAt
			}
			if kind == PinCache {
				s.lru.Get(cid)
			}
			return nil
		}
	}

	if kind == PinCache {
		if e.size() > s.maxCacheBytes {
			return engine.ErrCacheTooSmall
		}
		if err := s.makeRoomForCache(e.size()); err != nil {
			return err
		}
	}

	e.pins = append(e.pins, Pin{Kind: kind, Owner: owner, RefCount: 1, ExpiresAt: expiresAt})

	if kind == PinCache && !e.cachePinned {
		e.cachePinned = true
		s.lru.Add(cid, e.size())
		s.cacheBytes += e.size()
	}
	return nil
}

// makeRoomForCache evicts least-recently-used Cache-pinned blocks until
// adding incomingBytes would not exceed maxCacheBytes (§4.F invariant 3).
// The block being inserted is never itself in the LRU yet, so every
// eviction here frees space belonging to some other block.
func (s *Store) makeRoomForCache(incomingBytes int64) error {
	if incomingBytes > s.maxCacheBytes {
		return engine.ErrCacheTooSmall
	}
	for s.cacheBytes+incomingBytes > s.maxCacheBytes {
		if _, _, ok := s.lru.RemoveOldest(); !ok {
			break
		}
	}
	return nil
}

// Unpin decrements the ref_count of every pin of kind owned by owner on
// cid, removing the pin entirely at zero (§4.F unpin).
func (s *Store) Unpin(cid ids.ContentId, kind PinKind, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.blocks[cid]
	if !ok {
		return engine.ErrNotFound
	}

	for i := range e.pins {
		if e.pins[i].Kind != kind || e.pins[i].Owner != owner {
			continue
		}
		e.pins[i].RefCount--
		if e.pins[i].RefCount <= 0 {
			e.pins = append(e.pins[:i], e.pins[i+1:]...)
			if kind == PinCache && e.cachePinned {
				s.lru.Remove(cid) // triggers onEvict, which clears cachePinned
			}
		}
		break
	}

	if !e.hasAnyLivePin(s.now()) {
		delete(s.blocks, cid)
	}
	return nil
}

// IsPinned reports whether cid currently carries any live pin.
func (s *Store) IsPinned(cid ids.ContentId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.blocks[cid]
	if !ok {
		return false
	}
	return e.hasAnyLivePin(s.now())
}

// BlockRecord is one block's bytes plus its live pins, as snapshotted by
// Export. §4.F does not itself mandate on-disk durability — that is
// ordinarily provided by replication to peers — but a single-node
// embedding with no peers (see placement.LoopbackRouter) needs somewhere
// to resume a Store's contents from across a process restart.
type BlockRecord struct {
	CID  ids.ContentId
	Data []byte
	Pins []Pin
}

// Export snapshots every live block and its pins.
func (s *Store) Export() []BlockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BlockRecord, 0, len(s.blocks))
	for cid, e := range s.blocks {
		pins := make([]Pin, len(e.pins))
		copy(pins, e.pins)
		data := make([]byte, len(e.data))
		copy(data, e.data)
		out = append(out, BlockRecord{CID: cid, Data: data, Pins: pins})
	}
	return out
}

// Import restores blocks and pins from a prior Export, replaying each
// pin's ref_count through Put/Pin so cache occupancy and LRU order come
// back the same way a live sequence of writes would have built them.
func (s *Store) Import(records []BlockRecord) error {
	for _, rec := range records {
		cid := s.Put(rec.Data)
		for _, p := range rec.Pins {
			for i := 0; i < p.RefCount; i++ {
				if err := s.Pin(cid, p.Kind, p.Owner, p.ExpiresAt); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// GC removes every block whose every pin has either expired or has
// ref_count 0 and is not User-kind, returning the removed ids (§4.F gc()).
func (s *Store) GC() []ids.ContentId {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed []ids.ContentId
	for cid, e := range s.blocks {
		if e.hasLiveUserPin(now) {
			continue
		}

		live := e.pins[:0]
		for _, p := range e.pins {
			switch {
			case p.Kind == PinUser && p.RefCount > 0:
				live = append(live, p)
			case p.Kind == PinCache && p.RefCount > 0:
				live = append(live, p)
			case (p.Kind == PinPaid || p.Kind == PinTemporary) && p.RefCount > 0 && !p.expired(now):
				live = append(live, p)
			}
		}
		e.pins = live

		if len(e.pins) == 0 {
			if e.cachePinned {
				s.lru.Remove(cid)
			}
			delete(s.blocks, cid)
			removed = append(removed, cid)
		}
	}
	return removed
}

// Stats reports counts and bytes per pin kind plus cache occupancy (§4.F
// stats()).
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		BlocksByKind:  make(map[string]int),
		BytesByKind:   make(map[string]int64),
		MaxCacheBytes: s.maxCacheBytes,
		CacheBytes:    s.cacheBytes,
	}
	now := s.now()
	for _, e := range s.blocks {
		if !e.hasAnyLivePin(now) {
			continue
		}
		st.BlocksTotal++
		st.BytesStored += e.size()
		seenKind := map[PinKind]bool{}
		for _, p := range e.pins {
			if seenKind[p.Kind] {
				continue
			}
			seenKind[p.Kind] = true
			st.BlocksByKind[p.Kind.String()]++
			st.BytesByKind[p.Kind.String()] += e.size()
		}
	}
	return st
}
