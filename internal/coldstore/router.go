package coldstore

import (
	"context"

	"github.com/dreamware/msscs/internal/ids"
	"github.com/dreamware/msscs/internal/placement"
)

// coldTierPeer is the fixed PeerID the cold tier answers to within
// Placement's peer-routing abstraction, letting a durable S3-compatible
// bucket participate as one more "peer" without the core needing a
// special case (§4.G: the core is oblivious to what the routing layer
// actually is).
const coldTierPeer placement.PeerID = "coldstore"

// RouterAdapter presents a ColdStore as a placement.Router with exactly
// one peer: the cold tier itself. FindProviders always offers that peer
// (the cold tier has no notion of "does it hold this block" cheaper than
// trying to fetch it); AnnounceProvider and PublishRecord are no-ops since
// the cold tier has no separate provider-advertisement channel.
type RouterAdapter struct {
	store *ColdStore
}

// NewRouterAdapter wraps store for use as a Placement Router.
func NewRouterAdapter(store *ColdStore) *RouterAdapter {
	return &RouterAdapter{store: store}
}

func (a *RouterAdapter) AnnounceProvider(ctx context.Context, cid ids.ContentId) error {
	return nil
}

func (a *RouterAdapter) FindProviders(ctx context.Context, cid ids.ContentId, max int) ([]placement.PeerID, error) {
	if max <= 0 {
		return nil, nil
	}
	return []placement.PeerID{coldTierPeer}, nil
}

func (a *RouterAdapter) FetchFrom(ctx context.Context, peer placement.PeerID, cid ids.ContentId) ([]byte, error) {
	return a.store.Get(ctx, cid)
}

func (a *RouterAdapter) PublishRecord(ctx context.Context, cid ids.ContentId, data []byte) error {
	return nil
}

func (a *RouterAdapter) PushTo(ctx context.Context, peer placement.PeerID, cid ids.ContentId, data []byte) error {
	return a.store.Put(ctx, cid, data)
}

func (a *RouterAdapter) ConnectedPeers(ctx context.Context) ([]placement.PeerID, error) {
	return []placement.PeerID{coldTierPeer}, nil
}
