package chunkcipher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/identity"
	"github.com/dreamware/msscs/internal/ids"
)

func newUnlocked(t *testing.T) *identity.UnlockedIdentity {
	t.Helper()
	_, unlocked, err := identity.Create("correct horse battery staple")
	require.NoError(t, err)
	return unlocked
}

func TestSealOpenRoundTrip(t *testing.T) {
	ident := newUnlocked(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	env, err := Seal(plaintext, ident, 0, nil, ids.ContentId{}, Metadata{
		PlaintextLen: uint32(len(plaintext)),
		ContentType:  "text/plain",
	})
	require.NoError(t, err)

	out, err := Open(env, ident)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plaintext, out))
}

func TestOpenWithWrongIdentityFailsAuth(t *testing.T) {
	writer := newUnlocked(t)
	reader := newUnlocked(t)

	env, err := Seal([]byte("secret chunk bytes"), writer, 0, nil, ids.ContentId{}, Metadata{})
	require.NoError(t, err)

	_, err = Open(env, reader)
	require.True(t, errors.Is(err, engine.ErrAuthFail))
}

func TestTamperedCiphertextFailsAuth(t *testing.T) {
	ident := newUnlocked(t)
	env, err := Seal([]byte("payload"), ident, 0, nil, ids.ContentId{}, Metadata{})
	require.NoError(t, err)

	env.AEADCiphertext[0] ^= 0xff

	_, err = Open(env, ident)
	require.True(t, errors.Is(err, engine.ErrAuthFail))
}

func TestTamperedSignatureFailsAuth(t *testing.T) {
	ident := newUnlocked(t)
	env, err := Seal([]byte("payload"), ident, 0, nil, ids.ContentId{}, Metadata{})
	require.NoError(t, err)

	env.PQSignature[0] ^= 0xff

	_, err = Open(env, ident)
	require.True(t, errors.Is(err, engine.ErrAuthFail))
}

func TestChunkChainLinkageRoundTrips(t *testing.T) {
	ident := newUnlocked(t)

	first, err := Seal([]byte("chunk zero"), ident, 0, nil, ids.ContentId{}, Metadata{})
	require.NoError(t, err)

	firstCID, err := first.ContentID()
	require.NoError(t, err)

	second, err := Seal([]byte("chunk one"), ident, 1, &first.UUID, firstCID, Metadata{})
	require.NoError(t, err)

	require.Equal(t, first.UUID, *second.PrevUUID)
	require.Equal(t, firstCID, second.PrevHash)

	out, err := Open(second, ident)
	require.NoError(t, err)
	require.Equal(t, "chunk one", string(out))
}

func TestMarshalUnmarshalEnvelopeRoundTrip(t *testing.T) {
	ident := newUnlocked(t)
	prevUUID := uuid.New()
	env, err := Seal([]byte("data"), ident, 3, &prevUUID, ids.Hash([]byte("prev")), Metadata{
		PlaintextLen:  4,
		CompressedLen: 4,
		ContentType:   "application/octet-stream",
	})
	require.NoError(t, err)

	raw, err := env.MarshalBinary()
	require.NoError(t, err)

	restored, err := UnmarshalEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, env, restored)

	out, err := Open(restored, ident)
	require.NoError(t, err)
	require.Equal(t, "data", string(out))
}

func TestUnmarshalTruncatedEnvelopeFails(t *testing.T) {
	ident := newUnlocked(t)
	env, err := Seal([]byte("x"), ident, 0, nil, ids.ContentId{}, Metadata{})
	require.NoError(t, err)

	raw, err := env.MarshalBinary()
	require.NoError(t, err)

	_, err = UnmarshalEnvelope(raw[:len(raw)-5])
	require.True(t, errors.Is(err, engine.ErrAuthFail))
}

func TestContentIDIsDeterministicPerEnvelope(t *testing.T) {
	ident := newUnlocked(t)
	env, err := Seal([]byte("x"), ident, 0, nil, ids.ContentId{}, Metadata{})
	require.NoError(t, err)

	a, err := env.ContentID()
	require.NoError(t, err)
	b, err := env.ContentID()
	require.NoError(t, err)
	require.Equal(t, a, b)
}
