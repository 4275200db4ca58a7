package placement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

type fakeRouter struct {
	mu         sync.Mutex
	providers  map[ids.ContentId][]PeerID
	blocks     map[PeerID]map[ids.ContentId][]byte
	connected  []PeerID
	pushed     map[PeerID][]ids.ContentId
	corruptFor map[PeerID]bool
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		providers:  make(map[ids.ContentId][]PeerID),
		blocks:     make(map[PeerID]map[ids.ContentId][]byte),
		pushed:     make(map[PeerID][]ids.ContentId),
		corruptFor: make(map[PeerID]bool),
	}
}

func (f *fakeRouter) AnnounceProvider(ctx context.Context, cid ids.ContentId) error { return nil }

func (f *fakeRouter) FindProviders(ctx context.Context, cid ids.ContentId, max int) ([]PeerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	peers := f.providers[cid]
	if len(peers) > max {
		peers = peers[:max]
	}
	return peers, nil
}

func (f *fakeRouter) FetchFrom(ctx context.Context, peer PeerID, cid ids.ContentId) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blocks[peer][cid]
	if !ok {
		return nil, errors.New("no such block at peer")
	}
	if f.corruptFor[peer] {
		corrupted := append([]byte{}, data...)
		corrupted[0] ^= 0xff
		return corrupted, nil
	}
	return data, nil
}

func (f *fakeRouter) PublishRecord(ctx context.Context, cid ids.ContentId, data []byte) error { return nil }

func (f *fakeRouter) PushTo(ctx context.Context, peer PeerID, cid ids.ContentId, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocks[peer] == nil {
		f.blocks[peer] = make(map[ids.ContentId][]byte)
	}
	f.blocks[peer][cid] = data
	f.providers[cid] = append(f.providers[cid], peer)
	f.pushed[peer] = append(f.pushed[peer], cid)
	return nil
}

func (f *fakeRouter) ConnectedPeers(ctx context.Context) ([]PeerID, error) {
	return f.connected, nil
}

func testConfig() config.PlacementConfig {
	return config.PlacementConfig{
		ReplicationFactor:     3,
		FetchTimeout:          time.Second,
		ProviderLookupTimeout: time.Second,
		RetryAttempts:         3,
		RetryBaseDelay:        time.Millisecond,
	}
}

func TestPublishStoresLocallyAndPushesToPeers(t *testing.T) {
	router := newFakeRouter()
	router.connected = []PeerID{"peer-a", "peer-b", "peer-c", "peer-d"}
	store := blockstore.New(1 << 20)
	rel := NewReliability("")
	p := New(router, store, rel, nil, testConfig())

	data := []byte("share bytes")
	cid, err := p.Publish(context.Background(), data, "writer")
	require.NoError(t, err)
	require.True(t, store.IsPinned(cid))

	local, err := store.Get(cid)
	require.NoError(t, err)
	require.Equal(t, data, local)

	pushedTo := 0
	for _, cids := range router.pushed {
		for _, c := range cids {
			if c == cid {
				pushedTo++
			}
		}
	}
	require.Equal(t, 3, pushedTo) // ReplicationFactor
}

func TestFetchPrefersLocalStore(t *testing.T) {
	router := newFakeRouter()
	store := blockstore.New(1 << 20)
	rel := NewReliability("")
	p := New(router, store, rel, nil, testConfig())

	data := []byte("local bytes")
	cid := store.Put(data)
	require.NoError(t, store.Pin(cid, blockstore.PinUser, "writer", nil))

	out, err := p.Fetch(context.Background(), cid)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestFetchFallsBackToRemotePeer(t *testing.T) {
	router := newFakeRouter()
	store := blockstore.New(1 << 20)
	rel := NewReliability("")
	p := New(router, store, rel, nil, testConfig())

	data := []byte("remote bytes")
	cid := ids.Hash(data)
	router.providers[cid] = []PeerID{"peer-a"}
	router.blocks["peer-a"] = map[ids.ContentId][]byte{cid: data}

	out, err := p.Fetch(context.Background(), cid)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestFetchRejectsCorruptDataAndTriesNextPeer(t *testing.T) {
	router := newFakeRouter()
	store := blockstore.New(1 << 20)
	rel := NewReliability("")
	p := New(router, store, rel, nil, testConfig())

	data := []byte("good bytes")
	cid := ids.Hash(data)
	router.providers[cid] = []PeerID{"peer-bad", "peer-good"}
	router.blocks["peer-bad"] = map[ids.ContentId][]byte{cid: data}
	router.blocks["peer-good"] = map[ids.ContentId][]byte{cid: data}
	router.corruptFor["peer-bad"] = true

	out, err := p.Fetch(context.Background(), cid)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestFetchExhaustsRetriesWithInsufficientReplicas(t *testing.T) {
	router := newFakeRouter()
	store := blockstore.New(1 << 20)
	rel := NewReliability("")
	cfg := testConfig()
	cfg.RetryAttempts = 2
	cfg.RetryBaseDelay = time.Millisecond
	p := New(router, store, rel, nil, cfg)

	cid := ids.Hash([]byte("never published"))
	_, err := p.Fetch(context.Background(), cid)
	require.True(t, errors.Is(err, engine.ErrInsufficientReplicas))
}

func TestFilterByTagGlobKeepsMatchingPeersOnly(t *testing.T) {
	peers := []PeerID{"us-west:1", "us-west:2", "eu-central:1"}
	filtered := filterByTagGlob(peers, "us-west:*")
	require.Equal(t, []PeerID{"us-west:1", "us-west:2"}, filtered)
}

func TestDiversifyByContinentInterleavesBuckets(t *testing.T) {
	oracle := mapOracle{
		"a1": "na", "a2": "na",
		"b1": "eu",
	}
	peers := []PeerID{"a1", "a2", "b1"}
	out := diversifyByContinent(context.Background(), oracle, peers)
	require.Len(t, out, 3)
	// first two entries should come from different continents
	c0, _ := oracle.Continent(context.Background(), out[0])
	c1, _ := oracle.Continent(context.Background(), out[1])
	require.NotEqual(t, c0, c1)
}

type mapOracle map[PeerID]string

func (m mapOracle) Continent(ctx context.Context, peer PeerID) (string, bool) {
	c, ok := m[peer]
	return c, ok
}
