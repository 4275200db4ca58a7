package blockstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

func TestPutIsContentAddressedAndDeduplicates(t *testing.T) {
	s := New(1 << 20)
	data := []byte("hello, decentralized world!")

	cid1 := s.Put(data)
	cid2 := s.Put(data)
	require.Equal(t, cid1, cid2)

	require.NoError(t, s.Pin(cid1, PinUser, "alice", nil))
	require.NoError(t, s.Pin(cid2, PinUser, "alice", nil))

	stats := s.Stats()
	require.Equal(t, 1, stats.BlocksTotal)
}

func TestGetReturnsStoredBytes(t *testing.T) {
	s := New(1 << 20)
	data := []byte("payload")
	cid := s.Put(data)
	require.NoError(t, s.Pin(cid, PinUser, "alice", nil))

	out, err := s.Get(cid)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New(1 << 20)
	_, err := s.Get(s.Put(nil))
	require.NoError(t, err) // Put(nil) actually stores the empty block

	_, err = s.Get(ids.Hash([]byte("never stored")))
	require.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestUserPinsNeverEvictedByCacheBudget(t *testing.T) {
	s := New(1 << 20)
	cid := s.Put(make([]byte, 500*1024))
	require.NoError(t, s.Pin(cid, PinUser, "alice", nil))

	// Three 500 KiB Cache pins overflow the 1 MiB budget and force LRU
	// eviction; the User-pinned block must survive it.
	for i := 1; i <= 3; i++ {
		block := make([]byte, 500*1024)
		block[0] = byte(i)
		require.NoError(t, s.Pin(s.Put(block), PinCache, "alice", nil))
	}

	require.True(t, s.IsPinned(cid))
	removed := s.GC()
	require.Empty(t, removed)
	require.True(t, s.IsPinned(cid))
}

func TestCacheEvictsLeastRecentlyUsedUnderByteBudget(t *testing.T) {
	s := New(1 << 20) // 1 MiB

	block := func(tag byte) []byte {
		b := make([]byte, 500*1024)
		b[0] = tag
		return b
	}

	cidA := s.Put(block(1))
	require.NoError(t, s.Pin(cidA, PinCache, "cache", nil))

	cidB := s.Put(block(2))
	require.NoError(t, s.Pin(cidB, PinCache, "cache", nil))

	cidC := s.Put(block(3))
	require.NoError(t, s.Pin(cidC, PinCache, "cache", nil))

	// A was least recently used and should have been evicted to fit C.
	_, err := s.Get(cidA)
	require.True(t, errors.Is(err, engine.ErrNotFound))

	_, err = s.Get(cidB)
	require.NoError(t, err)
	_, err = s.Get(cidC)
	require.NoError(t, err)
}

func TestCacheInsertionLargerThanBudgetFailsWithoutEvictingUserPins(t *testing.T) {
	s := New(1 << 20)

	userData := make([]byte, 200*1024)
	userCID := s.Put(userData)
	require.NoError(t, s.Pin(userCID, PinUser, "alice", nil))

	tooBig := make([]byte, 2<<20)
	bigCID := s.Put(tooBig)
	err := s.Pin(bigCID, PinCache, "cache", nil)
	require.True(t, errors.Is(err, engine.ErrCacheTooSmall))

	require.True(t, s.IsPinned(userCID))
}

func TestUnpinDropsBlockOnceRefCountIsZero(t *testing.T) {
	s := New(1 << 20)
	cid := s.Put([]byte("data"))
	require.NoError(t, s.Pin(cid, PinUser, "alice", nil))
	require.NoError(t, s.Pin(cid, PinUser, "alice", nil)) // ref_count now 2

	require.NoError(t, s.Unpin(cid, PinUser, "alice"))
	require.True(t, s.IsPinned(cid)) // still 1 ref left

	require.NoError(t, s.Unpin(cid, PinUser, "alice"))
	require.False(t, s.IsPinned(cid))

	_, err := s.Get(cid)
	require.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestTemporaryPinRequiresExpiry(t *testing.T) {
	s := New(1 << 20)
	cid := s.Put([]byte("x"))
	err := s.Pin(cid, PinTemporary, "bob", nil)
	require.Error(t, err)
}

func TestGCRemovesExpiredTemporaryPins(t *testing.T) {
	s := New(1 << 20)
	s.now = func() time.Time { return time.Unix(1000, 0) }

	cid := s.Put([]byte("temp"))
	expiry := time.Unix(999, 0) // already expired relative to s.now
	require.NoError(t, s.Pin(cid, PinTemporary, "bob", &expiry))

	removed := s.GC()
	require.Contains(t, removed, cid)
	require.False(t, s.IsPinned(cid))
}

func TestGCNeverRemovesUserPinnedBlocks(t *testing.T) {
	s := New(1 << 20)
	cid := s.Put([]byte("kept forever"))
	require.NoError(t, s.Pin(cid, PinUser, "alice", nil))

	removed := s.GC()
	require.Empty(t, removed)
}

func TestStatsReportsBytesAndCountsPerKind(t *testing.T) {
	s := New(1 << 20)
	cid1 := s.Put([]byte("one"))
	require.NoError(t, s.Pin(cid1, PinUser, "alice", nil))
	cid2 := s.Put([]byte("two!!"))
	require.NoError(t, s.Pin(cid2, PinCache, "cache", nil))

	stats := s.Stats()
	require.Equal(t, 2, stats.BlocksTotal)
	require.Equal(t, 1, stats.BlocksByKind["user"])
	require.Equal(t, 1, stats.BlocksByKind["cache"])
	require.EqualValues(t, 5, stats.CacheBytes)
}

func TestExportImportRoundTripsBlocksAndPins(t *testing.T) {
	s := New(1 << 20)
	cid1 := s.Put([]byte("alpha"))
	require.NoError(t, s.Pin(cid1, PinUser, "alice", nil))
	require.NoError(t, s.Pin(cid1, PinUser, "alice", nil)) // ref_count 2

	records := s.Export()
	require.Len(t, records, 1)

	s2 := New(1 << 20)
	require.NoError(t, s2.Import(records))

	got, err := s2.Get(cid1)
	require.NoError(t, err)
	require.Equal(t, []byte("alpha"), got)
	require.True(t, s2.IsPinned(cid1))

	require.NoError(t, s2.Unpin(cid1, PinUser, "alice"))
	require.True(t, s2.IsPinned(cid1)) // ref_count 2 -> 1, still pinned

	require.NoError(t, s2.Unpin(cid1, PinUser, "alice"))
	require.False(t, s2.IsPinned(cid1))
}
