// Package identity implements component A: a passphrase-sealed record
// binding a long-lived symmetric master key to post-quantum KEM and
// signature keypairs, and the unlock/lock lifecycle that turns it into an
// UnlockedIdentity other components consume.
//
// The envelope-encryption shape (derive a wrapping key, seal a bundle of
// secrets under it, never persist the bundle unsealed) is grounded on
// internal/crypto/keymanager.go's KeyManager.WrapKey/UnwrapKey contract,
// generalized from "one DEK" to "master key + two PQ private keys".
package identity

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem"
	kemschemes "github.com/cloudflare/circl/kem/schemes"
	"github.com/cloudflare/circl/sign"
	signschemes "github.com/cloudflare/circl/sign/schemes"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dreamware/msscs/internal/codec"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

// KEMName and SignName pin the post-quantum algorithms used for every
// identity. Kept as named constants (not configurable per spec) so every
// sealed record on disk is interoperable.
const (
	KEMName  = "Kyber768"
	SignName = "Dilithium3"
)

// Argon2 KDF parameters, matching §4.A's "memory >= 64 MiB, iterations >= 3".
const (
	ArgonMemoryKiB   = 64 * 1024
	ArgonIterations  = 3
	ArgonParallelism = 4
	ArgonKeyLen      = 32
	saltSize         = 32
)

func kemScheme() kem.Scheme   { return kemschemes.ByName(KEMName) }
func signScheme() sign.Scheme { return signschemes.ByName(SignName) }

// Identity is the sealed, disk-persistable record (§3).
type Identity struct {
	UserID        ids.ContentId
	KEMPublic     []byte
	SignPublic    []byte
	Salt          []byte
	SealedSecrets []byte // nonce || AEAD ciphertext of the secrets bundle
}

// UnlockedIdentity holds secret material in memory for the lifetime of a
// process session. Callers must call Lock when done to zero the master
// key; components only ever receive this type, never the raw bytes.
type UnlockedIdentity struct {
	userID     ids.ContentId
	masterKey  [32]byte
	kemPublic  kem.PublicKey
	kemSecret  kem.PrivateKey
	signPublic sign.PublicKey
	signSecret sign.PrivateKey
	locked     bool
}

func deriveKDFKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, ArgonIterations, ArgonMemoryKiB, ArgonParallelism, ArgonKeyLen)
}

func sealSecrets(kdfKey, masterKey, kemSecretBytes, signSecretBytes []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(kdfKey)
	if err != nil {
		return nil, fmt.Errorf("identity: construct AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("identity: generate nonce: %w", err)
	}

	enc := codec.NewEncoder()
	enc.PutFixed(masterKey)
	enc.PutBytes(kemSecretBytes)
	enc.PutBytes(signSecretBytes)
	plaintext := enc.Bytes()

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func openSecrets(kdfKey, sealed []byte) (masterKey []byte, kemSecretBytes []byte, signSecretBytes []byte, err error) {
	aead, err := chacha20poly1305.New(kdfKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("identity: construct AEAD: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, nil, nil, engine.ErrIdentityCorrupt
	}
	nonce := sealed[:aead.NonceSize()]
	ciphertext := sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Deliberately not distinguished from a KDF-derived-wrong-key case:
		// any AEAD failure during unlock is BadPassphrase, never a more
		// specific diagnosis (§4.A).
		return nil, nil, nil, engine.ErrBadPassphrase
	}

	dec := codec.NewDecoder(plaintext)
	master := dec.GetFixed(32)
	kemSk := dec.GetBytes()
	signSk := dec.GetBytes()
	if dec.Err() != nil {
		return nil, nil, nil, fmt.Errorf("identity: %w: %v", engine.ErrIdentityCorrupt, dec.Err())
	}
	return master, kemSk, signSk, nil
}

// Create generates a fresh master key, KEM keypair, and signature keypair,
// seals them under a passphrase-derived key, and returns both the sealed
// Identity (safe to persist) and the in-memory UnlockedIdentity for
// immediate use (§4.A create).
func Create(passphrase string) (*Identity, *UnlockedIdentity, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("identity: generate salt: %w", err)
	}

	var masterKey [32]byte
	if _, err := rand.Read(masterKey[:]); err != nil {
		return nil, nil, fmt.Errorf("identity: generate master key: %w", err)
	}

	kemPub, kemSec, err := kemScheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate KEM keypair: %w", err)
	}
	signPub, signSec, err := signScheme().GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate signature keypair: %w", err)
	}

	return seal(passphrase, salt, masterKey, kemPub, kemSec, signPub, signSec)
}

func seal(passphrase string, salt []byte, masterKey [32]byte, kemPub kem.PublicKey, kemSec kem.PrivateKey, signPub sign.PublicKey, signSec sign.PrivateKey) (*Identity, *UnlockedIdentity, error) {
	kemPubBytes, err := kemPub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: marshal KEM public key: %w", err)
	}
	kemSecBytes, err := kemSec.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: marshal KEM secret key: %w", err)
	}
	signPubBytes, err := signPub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: marshal signature public key: %w", err)
	}
	signSecBytes, err := signSec.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: marshal signature secret key: %w", err)
	}

	kdfKey := deriveKDFKey(passphrase, salt)
	sealed, err := sealSecrets(kdfKey, masterKey[:], kemSecBytes, signSecBytes)
	if err != nil {
		return nil, nil, err
	}

	userID := ids.Hash(append(append([]byte{}, kemPubBytes...), signPubBytes...))

	record := &Identity{
		UserID:        userID,
		KEMPublic:     kemPubBytes,
		SignPublic:    signPubBytes,
		Salt:          salt,
		SealedSecrets: sealed,
	}
	unlocked := &UnlockedIdentity{
		userID:     userID,
		masterKey:  masterKey,
		kemPublic:  kemPub,
		kemSecret:  kemSec,
		signPublic: signPub,
		signSecret: signSec,
	}
	return record, unlocked, nil
}

// Unlock decrypts the sealed record with the given passphrase, returning
// BadPassphrase on any AEAD failure and IdentityCorrupt on structural
// malformation (§4.A unlock).
func (rec *Identity) Unlock(passphrase string) (*UnlockedIdentity, error) {
	if len(rec.Salt) == 0 || len(rec.KEMPublic) == 0 || len(rec.SignPublic) == 0 {
		return nil, engine.ErrIdentityCorrupt
	}

	kemPub, err := kemScheme().UnmarshalBinaryPublicKey(rec.KEMPublic)
	if err != nil {
		return nil, fmt.Errorf("identity: %w: bad KEM public key: %v", engine.ErrIdentityCorrupt, err)
	}
	signPub, err := signScheme().UnmarshalBinaryPublicKey(rec.SignPublic)
	if err != nil {
		return nil, fmt.Errorf("identity: %w: bad signature public key: %v", engine.ErrIdentityCorrupt, err)
	}

	kdfKey := deriveKDFKey(passphrase, rec.Salt)
	masterKey, kemSecBytes, signSecBytes, err := openSecrets(kdfKey, rec.SealedSecrets)
	if err != nil {
		return nil, err
	}

	kemSec, err := kemScheme().UnmarshalBinaryPrivateKey(kemSecBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: %w: bad KEM secret key: %v", engine.ErrIdentityCorrupt, err)
	}
	signSec, err := signScheme().UnmarshalBinaryPrivateKey(signSecBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: %w: bad signature secret key: %v", engine.ErrIdentityCorrupt, err)
	}

	var mk [32]byte
	copy(mk[:], masterKey)

	return &UnlockedIdentity{
		userID:     rec.UserID,
		masterKey:  mk,
		kemPublic:  kemPub,
		kemSecret:  kemSec,
		signPublic: signPub,
		signSecret: signSec,
	}, nil
}

// MarshalBinary encodes the Identity using the project's stable binary
// encoding, suitable for writing to identity.sealed.
func (rec *Identity) MarshalBinary() ([]byte, error) {
	enc := codec.NewEncoder()
	enc.PutFixed(rec.UserID[:])
	enc.PutBytes(rec.KEMPublic)
	enc.PutBytes(rec.SignPublic)
	enc.PutBytes(rec.Salt)
	enc.PutBytes(rec.SealedSecrets)
	return enc.Bytes(), nil
}

// UnmarshalIdentity decodes a record written by MarshalBinary.
func UnmarshalIdentity(b []byte) (*Identity, error) {
	dec := codec.NewDecoder(b)
	var rec Identity
	copy(rec.UserID[:], dec.GetFixed(32))
	rec.KEMPublic = dec.GetBytes()
	rec.SignPublic = dec.GetBytes()
	rec.Salt = dec.GetBytes()
	rec.SealedSecrets = dec.GetBytes()
	if dec.Err() != nil {
		return nil, fmt.Errorf("identity: %w: %v", engine.ErrIdentityCorrupt, dec.Err())
	}
	return &rec, nil
}

// UserID returns the identity's public user id.
func (u *UnlockedIdentity) UserID() ids.ContentId { return u.userID }

// MasterKey returns the 32-byte long-lived symmetric key. The returned
// slice aliases UnlockedIdentity's internal storage; callers must not
// retain it past Lock.
func (u *UnlockedIdentity) MasterKey() []byte { return u.masterKey[:] }

// KEMPublic returns the identity's KEM public key, used by senders to
// encapsulate a fresh per-chunk shared secret.
func (u *UnlockedIdentity) KEMPublic() kem.PublicKey { return u.kemPublic }

// KEMSecret returns the identity's KEM private key, used to decapsulate a
// chunk's stored ciphertext back to the shared secret on open.
func (u *UnlockedIdentity) KEMSecret() kem.PrivateKey { return u.kemSecret }

// Sign produces a post-quantum signature over msg (typically an envelope
// hash).
func (u *UnlockedIdentity) Sign(msg []byte) []byte {
	return signScheme().Sign(u.signSecret, msg, nil)
}

// Verify checks a post-quantum signature produced by Sign, using the
// identity's own public key (used by the holder reopening their own
// chunks; cross-identity verification is not part of the read path since
// §8 S5 requires AuthFail to come from the AEAD/KEM mismatch, not the
// signature check).
func (u *UnlockedIdentity) Verify(msg, sig []byte) bool {
	return signScheme().Verify(u.signPublic, msg, sig, nil)
}

// Lock zeroes the in-memory master key. The KEM and signature private keys
// are not zeroed. Subsequent use of u is invalid.
func (u *UnlockedIdentity) Lock() {
	if u.locked {
		return
	}
	for i := range u.masterKey {
		u.masterKey[i] = 0
	}
	u.locked = true
}
