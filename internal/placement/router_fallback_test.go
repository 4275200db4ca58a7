package placement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/ids"
)

func TestFallbackRouterWithNilColdIsPassthrough(t *testing.T) {
	primary := newFakeRouter()
	f := FallbackRouter{Primary: primary, Cold: nil}
	ctx := context.Background()

	cid := ids.Hash([]byte("passthrough"))
	require.NoError(t, f.PushTo(ctx, "peer-1", cid, []byte("passthrough")))
	require.NoError(t, f.AnnounceProvider(ctx, cid))

	peers, err := f.ConnectedPeers(ctx)
	require.NoError(t, err)
	require.Empty(t, peers)
}

func TestFallbackRouterFetchesFromColdWhenPrimaryFails(t *testing.T) {
	primary := newFakeRouter()
	cold := newFakeRouter()
	f := FallbackRouter{Primary: primary, Cold: cold}
	ctx := context.Background()

	data := []byte("durable backstop bytes")
	cid := ids.Hash(data)
	require.NoError(t, cold.PushTo(ctx, "cold-peer", cid, data))

	// Primary has never seen this block: FetchFrom a peer it knows nothing
	// about returns an error, which must fall through to Cold.
	got, err := f.FetchFrom(ctx, "cold-peer", cid)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFallbackRouterPrefersPrimaryWhenBothHaveIt(t *testing.T) {
	primary := newFakeRouter()
	cold := newFakeRouter()
	f := FallbackRouter{Primary: primary, Cold: cold}
	ctx := context.Background()

	data := []byte("primary copy")
	cid := ids.Hash(data)
	require.NoError(t, primary.PushTo(ctx, "peer-1", cid, data))

	got, err := f.FetchFrom(ctx, "peer-1", cid)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFallbackRouterMirrorsPushAndAnnounceToCold(t *testing.T) {
	primary := newFakeRouter()
	cold := newFakeRouter()
	f := FallbackRouter{Primary: primary, Cold: cold}
	ctx := context.Background()

	data := []byte("mirrored bytes")
	cid := ids.Hash(data)
	require.NoError(t, f.PushTo(ctx, "peer-1", cid, data))

	got, err := cold.FetchFrom(ctx, "peer-1", cid)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFallbackRouterCombinesFindProvidersAndConnectedPeers(t *testing.T) {
	primary := newFakeRouter()
	cold := newFakeRouter()
	f := FallbackRouter{Primary: primary, Cold: cold}
	ctx := context.Background()

	data := []byte("combined")
	cid := ids.Hash(data)
	require.NoError(t, primary.PushTo(ctx, "peer-1", cid, data))
	require.NoError(t, cold.PushTo(ctx, "cold-peer", cid, data))
	primary.connected = []PeerID{"peer-1"}
	cold.connected = []PeerID{"cold-peer"}

	found, err := f.FindProviders(ctx, cid, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []PeerID{"peer-1", "cold-peer"}, found)

	peers, err := f.ConnectedPeers(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []PeerID{"peer-1", "cold-peer"}, peers)
}

func TestFallbackRouterFindProvidersIgnoresColdErrorAndKeepsPrimaryResult(t *testing.T) {
	primary := newFakeRouter()
	f := FallbackRouter{Primary: primary, Cold: erroringRouter{}}
	ctx := context.Background()

	data := []byte("primary only")
	cid := ids.Hash(data)
	require.NoError(t, primary.PushTo(ctx, "peer-1", cid, data))
	primary.providers[cid] = []PeerID{"peer-1"}

	found, err := f.FindProviders(ctx, cid, 10)
	require.NoError(t, err)
	require.Equal(t, []PeerID{"peer-1"}, found)
}

// erroringRouter fails every call, standing in for a cold tier that is
// configured but temporarily unreachable.
type erroringRouter struct{}

func (erroringRouter) AnnounceProvider(ctx context.Context, cid ids.ContentId) error {
	return errors.New("erroringRouter: unreachable")
}

func (erroringRouter) FindProviders(ctx context.Context, cid ids.ContentId, max int) ([]PeerID, error) {
	return nil, errors.New("erroringRouter: unreachable")
}

func (erroringRouter) FetchFrom(ctx context.Context, peer PeerID, cid ids.ContentId) ([]byte, error) {
	return nil, errors.New("erroringRouter: unreachable")
}

func (erroringRouter) PublishRecord(ctx context.Context, cid ids.ContentId, data []byte) error {
	return errors.New("erroringRouter: unreachable")
}

func (erroringRouter) PushTo(ctx context.Context, peer PeerID, cid ids.ContentId, data []byte) error {
	return errors.New("erroringRouter: unreachable")
}

func (erroringRouter) ConnectedPeers(ctx context.Context) ([]PeerID, error) {
	return nil, errors.New("erroringRouter: unreachable")
}
