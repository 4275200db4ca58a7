package keymanager

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/ovh/kmip-go/kmipclient"
	"github.com/ovh/kmip-go/payloads"
)

// KMIPKeyReference names one wrapping key known to the KMIP server by its
// unique identifier and a locally tracked version number, so envelopes can
// record which key protected them without round-tripping to the KMS.
type KMIPKeyReference struct {
	ID      string
	Version int
}

// CosmianKMIPOptions configures a CosmianKMIPManager.
type CosmianKMIPOptions struct {
	Endpoint       string
	Keys           []KMIPKeyReference
	TLSConfig      *tls.Config
	Timeout        time.Duration
	Provider       string
	DualReadWindow int // how many prior key versions UnwrapKey still accepts
}

// CosmianKMIPManager implements KeyManager against a Cosmian KMIP server
// over github.com/ovh/kmip-go, the KMIP client the pack's gateway already
// depends on.
type CosmianKMIPManager struct {
	mu       sync.RWMutex
	client   *kmipclient.Client
	keys     []KMIPKeyReference
	provider string
	window   int
	timeout  time.Duration
}

// NewCosmianKMIPManager dials the KMIP endpoint and returns a ready manager.
func NewCosmianKMIPManager(opts CosmianKMIPOptions) (*CosmianKMIPManager, error) {
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("keymanager: at least one wrapping key reference is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client, err := kmipclient.Dial(opts.Endpoint,
		kmipclient.WithTLSConfig(opts.TLSConfig),
		kmipclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("keymanager: dial KMIP endpoint %s: %w", opts.Endpoint, err)
	}
	provider := opts.Provider
	if provider == "" {
		provider = "cosmian-kmip"
	}
	return &CosmianKMIPManager{
		client:   client,
		keys:     append([]KMIPKeyReference{}, opts.Keys...),
		provider: provider,
		window:   opts.DualReadWindow,
		timeout:  timeout,
	}, nil
}

// Provider implements KeyManager.
func (m *CosmianKMIPManager) Provider() string { return m.provider }

func (m *CosmianKMIPManager) activeKey() KMIPKeyReference {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := m.keys[0]
	for _, k := range m.keys {
		if k.Version > active.Version {
			active = k
		}
	}
	return active
}

func (m *CosmianKMIPManager) keyByVersion(version int) (KMIPKeyReference, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.keys {
		if k.Version == version {
			return k, true
		}
	}
	return KMIPKeyReference{}, false
}

// WrapKey implements KeyManager.
func (m *CosmianKMIPManager) WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*KeyEnvelope, error) {
	key := m.activeKey()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Encrypt(ctx, &payloads.EncryptRequestPayload{
		UniqueIdentifier: key.ID,
		Data:             plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("keymanager: KMIP encrypt: %w", err)
	}
	return &KeyEnvelope{
		KeyID:      key.ID,
		KeyVersion: key.Version,
		Provider:   m.provider,
		Ciphertext: resp.Data,
	}, nil
}

// UnwrapKey implements KeyManager. When the envelope carries no explicit
// KeyID (e.g. an older record written before key rotation), the key is
// looked up by version within DualReadWindow prior versions.
func (m *CosmianKMIPManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope, metadata map[string]string) ([]byte, error) {
	keyID := envelope.KeyID
	if keyID == "" {
		key, ok := m.keyByVersion(envelope.KeyVersion)
		if !ok {
			return nil, fmt.Errorf("keymanager: no wrapping key reference for version %d", envelope.KeyVersion)
		}
		if m.activeKey().Version-key.Version > m.window {
			return nil, fmt.Errorf("keymanager: key version %d is outside the dual-read window of %d", envelope.KeyVersion, m.window)
		}
		keyID = key.ID
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	resp, err := m.client.Decrypt(ctx, &payloads.DecryptRequestPayload{
		UniqueIdentifier: keyID,
		Data:             envelope.Ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("keymanager: KMIP decrypt: %w", err)
	}
	return resp.Data, nil
}

// ActiveKeyVersion implements KeyManager.
func (m *CosmianKMIPManager) ActiveKeyVersion(ctx context.Context) (int, error) {
	return m.activeKey().Version, nil
}

// HealthCheck implements KeyManager by fetching the active key's metadata.
func (m *CosmianKMIPManager) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	key := m.activeKey()
	if _, err := m.client.Get(ctx, &payloads.GetRequestPayload{UniqueIdentifier: key.ID}); err != nil {
		return fmt.Errorf("keymanager: KMIP health check: %w", err)
	}
	return nil
}

// Close implements KeyManager.
func (m *CosmianKMIPManager) Close(ctx context.Context) error {
	return m.client.Close()
}
