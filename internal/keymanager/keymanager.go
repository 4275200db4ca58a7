// Package keymanager abstracts external Key Management Systems that can
// take custody of the sealed identity record (§4.A's "master_key must
// never be persisted unsealed" extends naturally to "the key that seals it
// may itself be custodied externally"). This is an optional enrichment:
// identities work with no KeyManager configured, sealed only under the
// passphrase-derived key as spec.md describes.
//
// The interface is carried over unchanged from internal/crypto/keymanager.go:
// wrap/unwrap a plaintext key, report the active key version, health-check
// the KMS, and release resources on Close.
package keymanager

import "context"

// KeyManager wraps and unwraps the passphrase-derived key that seals an
// identity's secrets, so the sealing key itself can be escrowed in an
// external KMS rather than existing only in the user's memory.
type KeyManager interface {
	// Provider returns a short identifier (e.g. "cosmian-kmip") used for
	// diagnostics and metadata.
	Provider() string

	// WrapKey encrypts the provided plaintext key and returns an envelope
	// suitable for persisting alongside the sealed identity record.
	WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*KeyEnvelope, error)

	// UnwrapKey decrypts the ciphertext contained in the given envelope and
	// returns the plaintext key.
	UnwrapKey(ctx context.Context, envelope *KeyEnvelope, metadata map[string]string) ([]byte, error)

	// ActiveKeyVersion returns the version identifier of the primary
	// wrapping key.
	ActiveKeyVersion(ctx context.Context) (int, error)

	// HealthCheck verifies that the KMS is accessible and operational.
	HealthCheck(ctx context.Context) error

	// Close releases any underlying resources.
	Close(ctx context.Context) error
}

// KeyEnvelope captures the information required to unwrap a key.
type KeyEnvelope struct {
	KeyID      string
	KeyVersion int
	Provider   string
	Ciphertext []byte
}
