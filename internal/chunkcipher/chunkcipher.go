// Package chunkcipher implements component C: the per-chunk authenticated
// encryption envelope keyed by a fresh KEM encapsulation and bound to the
// identity's long-lived master key. Grounded on internal/crypto/chunked.go's
// per-chunk IV derivation and envelope-with-metadata structure, generalized
// from "one object key, many chunk IVs" to "one KEM encapsulation per
// chunk" per §4.C, and signed with the identity's post-quantum signature
// key the way the chunk manifest there is bound to its object metadata.
package chunkcipher

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"crypto/sha256"

	"github.com/dreamware/msscs/internal/codec"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/identity"
	"github.com/dreamware/msscs/internal/ids"
)

// Metadata carries the first chunk's compression bookkeeping (§3
// ChunkEnvelope.metadata); later chunks leave ContentType empty and
// PlaintextLen/CompressedLen set to their own chunk's sizes.
type Metadata struct {
	PlaintextLen  uint32
	CompressedLen uint32
	ContentType   string
}

// Envelope is the serialized ciphertext of one chunk (§3 ChunkEnvelope).
// Its own hash, via MarshalBinary, serves as the chunk's content id.
type Envelope struct {
	UUID           uuid.UUID
	ChunkIndex     uint32
	PrevUUID       *uuid.UUID
	PrevHash       ids.ContentId
	KEMCiphertext  []byte
	AEADNonce      []byte
	AEADCiphertext []byte
	PQSignature    []byte
	Metadata       Metadata
}

const kdfInfoPrefix = "chunk-key-v1"

// Seal encrypts plaintext into a fresh ChunkEnvelope bound to identity,
// chunkIndex, and the chain link (prevUUID, prevHash) (§4.C).
func Seal(plaintext []byte, ident *identity.UnlockedIdentity, chunkIndex uint32, prevUUID *uuid.UUID, prevHash ids.ContentId, meta Metadata) (*Envelope, error) {
	chunkUUID := uuid.New()

	kemCiphertext, sharedSecret, err := encapsulate(ident)
	if err != nil {
		return nil, fmt.Errorf("chunkcipher: KEM encapsulate: %w", err)
	}

	chunkKey, err := deriveChunkKey(ident.MasterKey(), sharedSecret, chunkUUID)
	if err != nil {
		return nil, fmt.Errorf("chunkcipher: derive chunk key: %w", err)
	}

	aead, err := chacha20poly1305.New(chunkKey)
	if err != nil {
		return nil, fmt.Errorf("chunkcipher: construct AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("chunkcipher: generate nonce: %w", err)
	}

	env := &Envelope{
		UUID:          chunkUUID,
		ChunkIndex:    chunkIndex,
		PrevUUID:      prevUUID,
		PrevHash:      prevHash,
		KEMCiphertext: kemCiphertext,
		AEADNonce:     nonce,
		Metadata:      meta,
	}

	aad := additionalData(env)
	env.AEADCiphertext = aead.Seal(nil, nonce, plaintext, aad)

	sigTarget := signableBytes(env)
	env.PQSignature = ident.Sign(sigTarget)

	return env, nil
}

// Open decrypts and verifies an Envelope, returning AuthFail on any AEAD or
// signature mismatch without distinguishing "wrong identity" from
// "corrupt ciphertext" (§4.C Open).
func Open(env *Envelope, ident *identity.UnlockedIdentity) ([]byte, error) {
	sharedSecret, err := decapsulate(ident, env.KEMCiphertext)
	if err != nil {
		return nil, fmt.Errorf("chunkcipher: %w", engine.ErrAuthFail)
	}

	chunkKey, err := deriveChunkKey(ident.MasterKey(), sharedSecret, env.UUID)
	if err != nil {
		return nil, fmt.Errorf("chunkcipher: %w", engine.ErrAuthFail)
	}

	aead, err := chacha20poly1305.New(chunkKey)
	if err != nil {
		return nil, fmt.Errorf("chunkcipher: %w", engine.ErrAuthFail)
	}

	aad := additionalData(env)
	plaintext, err := aead.Open(nil, env.AEADNonce, env.AEADCiphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("chunkcipher: %w", engine.ErrAuthFail)
	}

	if !ident.Verify(signableBytes(env), env.PQSignature) {
		return nil, fmt.Errorf("chunkcipher: %w", engine.ErrAuthFail)
	}

	return plaintext, nil
}

func encapsulate(ident *identity.UnlockedIdentity) (ciphertext, sharedSecret []byte, err error) {
	scheme := ident.KEMPublic().Scheme()
	return scheme.Encapsulate(ident.KEMPublic())
}

func decapsulate(ident *identity.UnlockedIdentity, ciphertext []byte) ([]byte, error) {
	scheme := ident.KEMSecret().Scheme()
	return scheme.Decapsulate(ident.KEMSecret(), ciphertext)
}

// deriveChunkKey implements §4.C step 2: chunk_key = KDF("chunk-key-v1",
// master_key || kem_shared_secret || chunk_uuid), via HKDF-SHA256 so the
// key depends on both long-lived and ephemeral secrets.
func deriveChunkKey(masterKey, sharedSecret []byte, chunkUUID uuid.UUID) ([]byte, error) {
	secret := append(append([]byte{}, masterKey...), sharedSecret...)
	info := append([]byte(kdfInfoPrefix), chunkUUID[:]...)
	r := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// additionalData binds {chunk_uuid, chunk_index, prev_uuid?, prev_hash} to
// the AEAD ciphertext (§4.C step 3).
func additionalData(env *Envelope) []byte {
	enc := codec.NewEncoder()
	enc.PutUUID(env.UUID)
	enc.PutUint32(env.ChunkIndex)
	enc.PutOptionalUUID(env.PrevUUID)
	enc.PutFixed(env.PrevHash[:])
	return enc.Bytes()
}

// signableBytes is the envelope hash input the post-quantum signature
// covers: every field except the signature itself.
func signableBytes(env *Envelope) []byte {
	enc := codec.NewEncoder()
	enc.PutUUID(env.UUID)
	enc.PutUint32(env.ChunkIndex)
	enc.PutOptionalUUID(env.PrevUUID)
	enc.PutFixed(env.PrevHash[:])
	enc.PutBytes(env.KEMCiphertext)
	enc.PutBytes(env.AEADNonce)
	enc.PutBytes(env.AEADCiphertext)
	enc.PutUint32(env.Metadata.PlaintextLen)
	enc.PutUint32(env.Metadata.CompressedLen)
	enc.PutString(env.Metadata.ContentType)
	hash := ids.Hash(enc.Bytes())
	return hash[:]
}

// MarshalBinary encodes the full envelope, including its signature. The
// resulting bytes are what Placement hashes into the chunk's content id
// (§4.H step 4: "serialize to bytes E_i; compute cid_i = hash(E_i)").
func (env *Envelope) MarshalBinary() ([]byte, error) {
	enc := codec.NewEncoder()
	enc.PutUUID(env.UUID)
	enc.PutUint32(env.ChunkIndex)
	enc.PutOptionalUUID(env.PrevUUID)
	enc.PutFixed(env.PrevHash[:])
	enc.PutBytes(env.KEMCiphertext)
	enc.PutBytes(env.AEADNonce)
	enc.PutBytes(env.AEADCiphertext)
	enc.PutBytes(env.PQSignature)
	enc.PutUint32(env.Metadata.PlaintextLen)
	enc.PutUint32(env.Metadata.CompressedLen)
	enc.PutString(env.Metadata.ContentType)
	return enc.Bytes(), nil
}

// UnmarshalEnvelope decodes an Envelope written by MarshalBinary. A
// malformed envelope fails as AuthFail, since it can never open anyway.
func UnmarshalEnvelope(b []byte) (*Envelope, error) {
	dec := codec.NewDecoder(b)
	env := &Envelope{
		UUID:       dec.GetUUID(),
		ChunkIndex: dec.GetUint32(),
	}
	env.PrevUUID = dec.GetOptionalUUID()
	copy(env.PrevHash[:], dec.GetFixed(32))
	env.KEMCiphertext = dec.GetBytes()
	env.AEADNonce = dec.GetBytes()
	env.AEADCiphertext = dec.GetBytes()
	env.PQSignature = dec.GetBytes()
	env.Metadata.PlaintextLen = dec.GetUint32()
	env.Metadata.CompressedLen = dec.GetUint32()
	env.Metadata.ContentType = dec.GetString()
	if dec.Err() != nil {
		return nil, fmt.Errorf("chunkcipher: decode envelope: %w: %v", engine.ErrAuthFail, dec.Err())
	}
	return env, nil
}

// ContentID returns the envelope's content id: the hash of its full wire
// encoding.
func (env *Envelope) ContentID() (ids.ContentId, error) {
	raw, err := env.MarshalBinary()
	if err != nil {
		return ids.ContentId{}, err
	}
	return ids.Hash(raw), nil
}
