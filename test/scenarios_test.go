// End-to-end scenario tests exercising the full write/read stack over a
// simulated multi-peer Router, replacing the teacher's HTTP-level
// ToxicServer fault injection (latency/5xx/hang against a running S3
// gateway backend) with fault injection at the placement.Router boundary:
// this engine has no HTTP surface, so fault injection belongs at the
// abstract peer interface (§4.G) the engine actually depends on.
//
// Two independently-wired fileengine.Engine instances share one fakeRouter
// and the on-disk manifest/descriptor files one writer produces: the
// first writes from an empty local store (every block is stored locally,
// then pushed to the simulated peer), the second reads with its own empty local store
// (every block must come back over the network), so these tests exercise
// real FindProviders/FetchFrom/retry/backoff/hash-verification code paths
// that internal/fileengine's own tests (which only ever use
// placement.LoopbackRouter) do not.
package test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/fileengine"
	"github.com/dreamware/msscs/internal/identity"
	"github.com/dreamware/msscs/internal/ids"
	"github.com/dreamware/msscs/internal/manifest"
	"github.com/dreamware/msscs/internal/placement"
)

// fakeRouter simulates a single remote peer reachable via PushTo/FetchFrom,
// with per-cid drop and corrupt switches for fault injection. AnnounceProvider
// is a no-op and FindProviders/ConnectedPeers always report the one simulated
// peer: the test cares about exercising the fetch/retry path, not about
// discovery mechanics.
type fakeRouter struct {
	mu        sync.Mutex
	peer      placement.PeerID
	blocks    map[ids.ContentId][]byte
	order     []ids.ContentId // cids in PushTo call order, i.e. Publish order
	dropped   map[ids.ContentId]bool
	corrupted map[ids.ContentId]bool
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		peer:      placement.PeerID("peer-1"),
		blocks:    make(map[ids.ContentId][]byte),
		dropped:   make(map[ids.ContentId]bool),
		corrupted: make(map[ids.ContentId]bool),
	}
}

func (r *fakeRouter) AnnounceProvider(ctx context.Context, cid ids.ContentId) error { return nil }

func (r *fakeRouter) FindProviders(ctx context.Context, cid ids.ContentId, max int) ([]placement.PeerID, error) {
	return []placement.PeerID{r.peer}, nil
}

func (r *fakeRouter) ConnectedPeers(ctx context.Context) ([]placement.PeerID, error) {
	return []placement.PeerID{r.peer}, nil
}

func (r *fakeRouter) PublishRecord(ctx context.Context, cid ids.ContentId, data []byte) error {
	return r.PushTo(ctx, r.peer, cid, data)
}

func (r *fakeRouter) PushTo(ctx context.Context, peer placement.PeerID, cid ids.ContentId, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.blocks[cid]; !exists {
		r.order = append(r.order, cid)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	r.blocks[cid] = cp
	return nil
}

func (r *fakeRouter) FetchFrom(ctx context.Context, peer placement.PeerID, cid ids.ContentId) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropped[cid] {
		return nil, engine.ErrTransport
	}
	data, ok := r.blocks[cid]
	if !ok {
		return nil, engine.ErrTransport
	}
	if r.corrupted[cid] {
		tampered := make([]byte, len(data))
		copy(tampered, data)
		tampered[0] ^= 0xFF
		return tampered, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (r *fakeRouter) drop(cid ids.ContentId)    { r.mu.Lock(); r.dropped[cid] = true; r.mu.Unlock() }
func (r *fakeRouter) corrupt(cid ids.ContentId) { r.mu.Lock(); r.corrupted[cid] = true; r.mu.Unlock() }

func (r *fakeRouter) orderedCIDs() []ids.ContentId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ids.ContentId, len(r.order))
	copy(out, r.order)
	return out
}

func scenarioPlacementConfig() config.PlacementConfig {
	return config.PlacementConfig{
		ReplicationFactor:     1,
		FetchTimeout:          2 * time.Second,
		ProviderLookupTimeout: 2 * time.Second,
		RetryAttempts:         3,
		RetryBaseDelay:        5 * time.Millisecond,
	}
}

// scenarioHarness is one (K,M,T,N) pipeline wired over a shared fakeRouter.
// writerEngine holds the only local store with data in it until openReader
// is called: every write publishes locally first, then replicates to the
// fakeRouter's one simulated peer. openReader must run after every write
// the test wants visible, since it reads the manifest/descriptor files
// fresh off disk at the moment it's called.
type scenarioHarness struct {
	dir            string
	pipeline       config.PipelineConfig
	unlocked       *identity.UnlockedIdentity
	router         *fakeRouter
	writerEngine   *fileengine.Engine
	manifestPath   string
	descriptorPath string
}

func newScenarioHarness(t *testing.T, pipeline config.PipelineConfig) *scenarioHarness {
	t.Helper()
	dir := t.TempDir()

	_, unlocked, err := identity.Create("scenario-passphrase")
	require.NoError(t, err)

	router := newFakeRouter()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	manifestPath := filepath.Join(dir, "manifest.json")
	descriptorPath := filepath.Join(dir, "descriptors.json")

	writerStore := blockstore.New(64 << 20)
	writerMan := manifest.New(manifestPath)
	writerPlace := placement.New(router, writerStore, placement.NewReliability(""), nil, scenarioPlacementConfig())
	writerEngine, err := fileengine.New(unlocked, writerStore, writerPlace, writerMan, descriptorPath, pipeline, logger)
	require.NoError(t, err)

	return &scenarioHarness{
		dir:            dir,
		pipeline:       pipeline,
		unlocked:       unlocked,
		router:         router,
		writerEngine:   writerEngine,
		manifestPath:   manifestPath,
		descriptorPath: descriptorPath,
	}
}

// openReader builds a fresh network-only Engine (empty local store) against
// whatever the writer has persisted to manifest.json/descriptors.json so far.
func (h *scenarioHarness) openReader(t *testing.T) *fileengine.Engine {
	t.Helper()
	readerStore := blockstore.New(64 << 20)
	readerMan, err := manifest.Load(h.manifestPath)
	require.NoError(t, err)
	readerPlace := placement.New(h.router, readerStore, placement.NewReliability(""), nil, scenarioPlacementConfig())
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	readerEngine, err := fileengine.New(h.unlocked, readerStore, readerPlace, readerMan, h.descriptorPath, h.pipeline, logger)
	require.NoError(t, err)
	return readerEngine
}

// scenarioPipeline matches §8 S1's (K,M)=(10,4), (T,N)=(3,5): 14 erasure
// shards per chunk, 5 shares per shard.
func scenarioPipeline() config.PipelineConfig {
	return config.PipelineConfig{
		ChunkSize:          64 * 1024,
		ErasureK:           10,
		ErasureM:           4,
		ShareThreshold:     3,
		ShareTotal:         5,
		CompressionEnabled: true,
	}
}

// shardGroup returns the shard cid and its N share cids, from the
// PushTo-order produced by fileengine.disperse: one envelope publish
// followed by, per shard, one shard publish and ShareTotal share publishes.
func shardGroup(order []ids.ContentId, shareTotal, shard int) (ids.ContentId, []ids.ContentId) {
	base := 1 + shard*(1+shareTotal)
	return order[base], order[base+1 : base+1+shareTotal]
}

// TestScenarioS1RoundTripOverNetworkRouter is §8 S1 driven over a
// simulated remote peer instead of the local store: every block the
// reader needs must come back through fakeRouter.FetchFrom.
func TestScenarioS1RoundTripOverNetworkRouter(t *testing.T) {
	pipeline := scenarioPipeline()
	h := newScenarioHarness(t, pipeline)
	ctx := context.Background()

	payload := []byte("Hello, decentralized world!")
	require.NoError(t, h.writerEngine.Write(ctx, "/hello.txt", payload, nil))

	order := h.router.orderedCIDs()
	require.Len(t, order, 1+14*(1+5), "1 chunk envelope + 14 shard blocks + 70 share blocks")

	reader := h.openReader(t)
	got, err := reader.Read(ctx, "/hello.txt", nil)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestScenarioS2TolerateUpToMShardLossButNotBeyond is §8 S2: losing
// exactly M=4 of 14 shards (and every one of their shares, so the loss is
// total rather than recoverable from shares) still reads back the
// original bytes; losing a 5th drops below K=10 and must fail.
func TestScenarioS2TolerateUpToMShardLossButNotBeyond(t *testing.T) {
	pipeline := scenarioPipeline()
	h := newScenarioHarness(t, pipeline)
	ctx := context.Background()

	payload := []byte("Hello, decentralized world!")
	require.NoError(t, h.writerEngine.Write(ctx, "/hello.txt", payload, nil))

	order := h.router.orderedCIDs()
	h.router.drop(order[0]) // force shard-based reconstruction of the envelope

	dropShard := func(s int) {
		shardID, shareIDs := shardGroup(order, pipeline.ShareTotal, s)
		h.router.drop(shardID)
		for _, id := range shareIDs {
			h.router.drop(id)
		}
	}

	for s := 0; s < pipeline.ErasureM; s++ {
		dropShard(s)
	}
	reader := h.openReader(t)
	got, err := reader.Read(ctx, "/hello.txt", nil)
	require.NoError(t, err, "losing exactly M shards must still reconstruct")
	require.Equal(t, payload, got)

	dropShard(pipeline.ErasureM) // a 5th shard lost: 9 remain, below K=10
	reader2 := h.openReader(t)
	_, err = reader2.Read(ctx, "/hello.txt", nil)
	require.ErrorIs(t, err, engine.ErrInsufficientReplicas)
}

// TestScenarioS4TamperedShareIsDiscardedAndShardReconstructs is §8 S4's
// first half: corrupting one share of a shard (with its shard block
// itself also unreachable) still leaves enough good shares to clear the
// T=3 threshold, so the read transparently reconstructs and completes.
func TestScenarioS4TamperedShareIsDiscardedAndShardReconstructs(t *testing.T) {
	pipeline := scenarioPipeline()
	h := newScenarioHarness(t, pipeline)
	ctx := context.Background()

	payload := []byte("Hello, decentralized world!")
	require.NoError(t, h.writerEngine.Write(ctx, "/hello.txt", payload, nil))

	order := h.router.orderedCIDs()
	h.router.drop(order[0]) // force shard-based reconstruction

	shardID, shareIDs := shardGroup(order, pipeline.ShareTotal, 0)
	h.router.drop(shardID)       // force share-based shard reconstruction
	h.router.corrupt(shareIDs[0]) // one tampered share; 4 good ones remain >= T=3

	reader := h.openReader(t)
	got, err := reader.Read(ctx, "/hello.txt", nil)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestScenarioS4ExceedingShareAndShardToleranceFailsRead is §8 S4's second
// half in spirit: tampering enough shares of enough distinct shards that
// each of those shards individually fails to reconstruct, and there are
// more such shards than the erasure code's M=4 tolerance, fails the read.
func TestScenarioS4ExceedingShareAndShardToleranceFailsRead(t *testing.T) {
	pipeline := scenarioPipeline()
	h := newScenarioHarness(t, pipeline)
	ctx := context.Background()

	payload := []byte("Hello, decentralized world!")
	require.NoError(t, h.writerEngine.Write(ctx, "/hello.txt", payload, nil))

	order := h.router.orderedCIDs()
	h.router.drop(order[0])

	for s := 0; s < pipeline.ErasureM+1; s++ {
		shardID, shareIDs := shardGroup(order, pipeline.ShareTotal, s)
		h.router.drop(shardID)
		// Corrupt 3 of 5 shares, leaving 2 good: below the T=3 threshold.
		for i := 0; i < 3; i++ {
			h.router.corrupt(shareIDs[i])
		}
	}

	reader := h.openReader(t)
	_, err := reader.Read(ctx, "/hello.txt", nil)
	require.ErrorIs(t, err, engine.ErrInsufficientReplicas)
}
