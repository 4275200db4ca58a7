package placement

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	glob "github.com/ryanuber/go-glob"

	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

// searchWidthMultiplier over-fetches candidate providers so filtering
// (tag allowlist, geo diversity) still leaves enough peers to fill
// ReplicationFactor.
const searchWidthMultiplier = 3

// Placement implements the write/read dispersal policy of §4.G on top of
// an abstract Router, a local BlockStore, and optional peer-reliability
// and geo-diversity overlays.
type Placement struct {
	router      Router
	store       *blockstore.Store
	reliability *Reliability
	oracle      LocationOracle
	cfg         config.PlacementConfig
}

// New constructs a Placement. oracle may be nil to disable the geographic
// diversity overlay.
func New(router Router, store *blockstore.Store, reliability *Reliability, oracle LocationOracle, cfg config.PlacementConfig) *Placement {
	return &Placement{router: router, store: store, reliability: reliability, oracle: oracle, cfg: cfg}
}

// Publish implements §4.G's write policy for one share, shard, or chunk
// envelope's serialized bytes: store and pin locally as the authoritative
// copy, announce to the routing layer, then push to up to
// ReplicationFactor peers.
func (p *Placement) Publish(ctx context.Context, data []byte, owner string) (ids.ContentId, error) {
	cid := p.store.Put(data)
	if err := p.store.Pin(cid, blockstore.PinUser, owner, nil); err != nil {
		return cid, err
	}

	// Announcement failures are not fatal: the routing layer is eventually
	// consistent (§5 Ordering guarantees) and a missed announce can be
	// retried by a later GC/repair pass, not by failing the write.
	_ = p.router.AnnounceProvider(ctx, cid)

	for _, peer := range p.selectReplicationTargets(ctx, cid) {
		_ = p.router.PushTo(ctx, peer, cid, data)
	}
	return cid, nil
}

func (p *Placement) selectReplicationTargets(ctx context.Context, cid ids.ContentId) []PeerID {
	width := p.cfg.ReplicationFactor * searchWidthMultiplier
	if width <= 0 {
		width = searchWidthMultiplier
	}
	found, _ := p.router.FindProviders(ctx, cid, width)
	connected, _ := p.router.ConnectedPeers(ctx)
	candidates := dedupePeers(append(found, connected...))

	if p.cfg.PeerTagAllow != "" {
		candidates = filterByTagGlob(candidates, p.cfg.PeerTagAllow)
	}

	candidates = p.reliability.Rank(ctx, candidates)
	if p.oracle != nil && p.cfg.GeoDiversityEnabled {
		candidates = diversifyByContinent(ctx, p.oracle, candidates)
	}

	if len(candidates) > p.cfg.ReplicationFactor {
		candidates = candidates[:p.cfg.ReplicationFactor]
	}
	return candidates
}

func dedupePeers(peers []PeerID) []PeerID {
	seen := make(map[PeerID]bool, len(peers))
	out := make([]PeerID, 0, len(peers))
	for _, p := range peers {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// filterByTagGlob keeps only peers whose id matches pattern, used the way
// internal/s3/providers.go picks a known provider by name — here matched
// against a glob instead of an exact map key, since peer ids are expected
// to carry a tag prefix such as "region-us-west:<node-id>".
func filterByTagGlob(peers []PeerID, pattern string) []PeerID {
	out := make([]PeerID, 0, len(peers))
	for _, p := range peers {
		if glob.Glob(pattern, string(p)) {
			out = append(out, p)
		}
	}
	return out
}

// diversifyByContinent reorders candidates to maximize continent spread
// before relying on reliability ranking within each continent bucket
// (§4.G "Geographic diversity"). Peers the oracle cannot locate are
// treated as their own "unknown" bucket rather than excluded, since
// absence of location data must not block writes.
func diversifyByContinent(ctx context.Context, oracle LocationOracle, peers []PeerID) []PeerID {
	buckets := make(map[string][]PeerID)
	var order []string
	for _, peer := range peers {
		continent, ok := oracle.Continent(ctx, peer)
		if !ok {
			continent = "unknown"
		}
		if _, seen := buckets[continent]; !seen {
			order = append(order, continent)
		}
		buckets[continent] = append(buckets[continent], peer)
	}

	out := make([]PeerID, 0, len(peers))
	for {
		progressed := false
		for _, continent := range order {
			if len(buckets[continent]) == 0 {
				continue
			}
			out = append(out, buckets[continent][0])
			buckets[continent] = buckets[continent][1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// Fetch implements §4.G's read policy for one share, shard, or chunk
// envelope's content id: try the local store first, then query the
// routing layer with a bounded retry budget, preferring peers with lower
// latency and higher historical success rate, verifying the content hash
// before trusting any fetched bytes.
func (p *Placement) Fetch(ctx context.Context, cid ids.ContentId) ([]byte, error) {
	if data, err := p.store.Get(cid); err == nil {
		return data, nil
	}

	attempts := p.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryBaseDelay

	var lastErr error = engine.ErrInsufficientReplicas
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, engine.ErrCancelled
			case <-time.After(bo.NextBackOff()):
			}
		}

		lookupCtx, cancel := context.WithTimeout(ctx, p.cfg.ProviderLookupTimeout)
		peers, err := p.router.FindProviders(lookupCtx, cid, p.cfg.ReplicationFactor*searchWidthMultiplier)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		ranked := p.reliability.Rank(ctx, peers)
		for _, peer := range ranked {
			data, err := p.fetchAndVerify(ctx, peer, cid)
			if err != nil {
				lastErr = err
				continue
			}
			return data, nil
		}
	}
	return nil, lastErr
}

func (p *Placement) fetchAndVerify(ctx context.Context, peer PeerID, cid ids.ContentId) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	data, err := p.router.FetchFrom(fetchCtx, peer, cid)
	if err != nil {
		p.reliability.RecordFailure(ctx, peer)
		return nil, err
	}

	// Verify hash(bytes) == cid before deserialization (§4.G read policy
	// step 3); a mismatch is treated as a misbehaving or stale peer, not
	// a decode attempt.
	if ids.Hash(data) != cid {
		p.reliability.RecordFailure(ctx, peer)
		return nil, engine.ErrCorruptShard
	}

	p.reliability.RecordSuccess(ctx, peer, time.Since(start))
	return data, nil
}
