// Package placement implements component G: the abstract peer-routing
// interface the core consumes plus the write/read dispersal policy layered
// on top of it. Grounded on internal/s3/providers.go's "pick an
// endpoint/provider, try it, fall back" shape (ValidateProviderConfig,
// GetProviderConfig), generalized from "one S3-compatible backend" to
// "many content-addressed peers" per spec §4.G.
package placement

import (
	"context"
	"errors"

	"github.com/dreamware/msscs/internal/ids"
)

// PeerID identifies a participant in the routing layer. The core treats it
// as opaque; Router implementations interpret it however their transport
// requires (multiaddr, node id, URL, ...).
type PeerID string

// Router is the abstract peer-routing interface consumed by the core
// (§4.G "Abstract peer interface"). The core is oblivious to whether the
// implementation is a Kademlia DHT, a gossip bus, or a flat broadcast
// network, provided these four operations (plus PushTo, the block-push
// primitive §4.G step 4 calls "fetch_from-inverse") satisfy their stated
// contracts.
type Router interface {
	// AnnounceProvider tells the routing layer this node holds cid.
	AnnounceProvider(ctx context.Context, cid ids.ContentId) error
	// FindProviders returns up to max peers believed to hold cid.
	FindProviders(ctx context.Context, cid ids.ContentId, max int) ([]PeerID, error)
	// FetchFrom requests cid's bytes directly from peer.
	FetchFrom(ctx context.Context, peer PeerID, cid ids.ContentId) ([]byte, error)
	// PublishRecord puts bytes into the routing layer's value store, for
	// payloads small enough to live directly in routing records.
	PublishRecord(ctx context.Context, cid ids.ContentId, data []byte) error
	// PushTo proactively sends data for cid to peer, the routing layer's
	// block-push primitive used to satisfy the write-path replication
	// factor without waiting for pull-based discovery.
	PushTo(ctx context.Context, peer PeerID, cid ids.ContentId, data []byte) error
	// ConnectedPeers returns peers currently reachable without a DHT
	// lookup, consulted to expand the replication candidate set (§4.G
	// write policy step 4: "expanded with currently-connected peers").
	ConnectedPeers(ctx context.Context) ([]PeerID, error)
}

// LocationOracle is the optional geographic-diversity overlay (§4.G
// "Geographic diversity"). It is a policy layer, not a correctness layer:
// an oracle returning ok=false for every peer must never block writes.
type LocationOracle interface {
	// Continent returns a coarse location label for peer, or ok=false if
	// unknown.
	Continent(ctx context.Context, peer PeerID) (continent string, ok bool)
}

// LoopbackRouter is the degenerate single-node Router: it has no peers and
// every lookup comes back empty. It lets the engine run standalone against
// its local BlockStore (every Publish/Fetch resolves there) when no real
// libp2p/DHT transport is wired in — that transport is an external
// collaborator per §1, not part of this core.
type LoopbackRouter struct{}

func (LoopbackRouter) AnnounceProvider(ctx context.Context, cid ids.ContentId) error { return nil }

func (LoopbackRouter) FindProviders(ctx context.Context, cid ids.ContentId, max int) ([]PeerID, error) {
	return nil, nil
}

func (LoopbackRouter) FetchFrom(ctx context.Context, peer PeerID, cid ids.ContentId) ([]byte, error) {
	return nil, errors.New("placement: loopback router has no peers")
}

func (LoopbackRouter) PublishRecord(ctx context.Context, cid ids.ContentId, data []byte) error {
	return nil
}

func (LoopbackRouter) PushTo(ctx context.Context, peer PeerID, cid ids.ContentId, data []byte) error {
	return nil
}

func (LoopbackRouter) ConnectedPeers(ctx context.Context) ([]PeerID, error) { return nil, nil }

// FallbackRouter composes a primary Router with an optional cold-tier
// Router, consulted only once the primary has nothing to offer (§4.F/§4.G:
// a durable backend as "Placement provider of last resort"). Cold is nil
// when no durable backend is configured, degenerating FallbackRouter to a
// passthrough over Primary; Publish-side calls (AnnounceProvider, PushTo,
// PublishRecord) always mirror to Cold too, so the backstop tier stays
// current without Fetch ever needing to special-case it.
type FallbackRouter struct {
	Primary Router
	Cold    Router
}

func (f FallbackRouter) AnnounceProvider(ctx context.Context, cid ids.ContentId) error {
	err := f.Primary.AnnounceProvider(ctx, cid)
	if f.Cold != nil {
		_ = f.Cold.AnnounceProvider(ctx, cid)
	}
	return err
}

func (f FallbackRouter) FindProviders(ctx context.Context, cid ids.ContentId, max int) ([]PeerID, error) {
	peers, err := f.Primary.FindProviders(ctx, cid, max)
	if f.Cold == nil {
		return peers, err
	}
	coldPeers, coldErr := f.Cold.FindProviders(ctx, cid, max)
	if coldErr != nil {
		return peers, err
	}
	return append(peers, coldPeers...), nil
}

func (f FallbackRouter) FetchFrom(ctx context.Context, peer PeerID, cid ids.ContentId) ([]byte, error) {
	data, err := f.Primary.FetchFrom(ctx, peer, cid)
	if err == nil || f.Cold == nil {
		return data, err
	}
	return f.Cold.FetchFrom(ctx, peer, cid)
}

func (f FallbackRouter) PublishRecord(ctx context.Context, cid ids.ContentId, data []byte) error {
	err := f.Primary.PublishRecord(ctx, cid, data)
	if f.Cold != nil {
		_ = f.Cold.PublishRecord(ctx, cid, data)
	}
	return err
}

func (f FallbackRouter) PushTo(ctx context.Context, peer PeerID, cid ids.ContentId, data []byte) error {
	err := f.Primary.PushTo(ctx, peer, cid, data)
	if f.Cold != nil {
		_ = f.Cold.PushTo(ctx, peer, cid, data)
	}
	return err
}

func (f FallbackRouter) ConnectedPeers(ctx context.Context) ([]PeerID, error) {
	peers, err := f.Primary.ConnectedPeers(ctx)
	if f.Cold == nil {
		return peers, err
	}
	coldPeers, _ := f.Cold.ConnectedPeers(ctx)
	return append(peers, coldPeers...), err
}
