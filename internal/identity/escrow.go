package identity

import (
	"context"
	"fmt"

	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/keymanager"
)

// Escrow wraps an identity's passphrase-derived sealing key with an
// external KeyManager, so the record can later be recovered without the
// passphrase (§4.A's optional external-KMS custody enrichment). Escrowing
// does not change SealedSecrets or anything persisted in Identity itself —
// callers are responsible for storing the returned envelope alongside the
// identity record if they want KMS-based recovery available later.
func Escrow(ctx context.Context, km keymanager.KeyManager, passphrase string, rec *Identity) (*keymanager.KeyEnvelope, error) {
	kdfKey := deriveKDFKey(passphrase, rec.Salt)
	metadata := map[string]string{"user_id": rec.UserID.String()}
	envelope, err := km.WrapKey(ctx, kdfKey, metadata)
	if err != nil {
		return nil, fmt.Errorf("identity: escrow sealing key via %s: %w", km.Provider(), err)
	}
	return envelope, nil
}

// Recover unwraps a sealing key previously escrowed with Escrow and uses it
// to unlock rec directly, without the original passphrase.
func Recover(ctx context.Context, km keymanager.KeyManager, envelope *keymanager.KeyEnvelope, rec *Identity) (*UnlockedIdentity, error) {
	if len(rec.Salt) == 0 || len(rec.KEMPublic) == 0 || len(rec.SignPublic) == 0 {
		return nil, engine.ErrIdentityCorrupt
	}

	metadata := map[string]string{"user_id": rec.UserID.String()}
	kdfKey, err := km.UnwrapKey(ctx, envelope, metadata)
	if err != nil {
		return nil, fmt.Errorf("identity: recover sealing key via %s: %w", km.Provider(), err)
	}

	kemPub, err := kemScheme().UnmarshalBinaryPublicKey(rec.KEMPublic)
	if err != nil {
		return nil, fmt.Errorf("identity: %w: bad KEM public key: %v", engine.ErrIdentityCorrupt, err)
	}
	signPub, err := signScheme().UnmarshalBinaryPublicKey(rec.SignPublic)
	if err != nil {
		return nil, fmt.Errorf("identity: %w: bad signature public key: %v", engine.ErrIdentityCorrupt, err)
	}

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
