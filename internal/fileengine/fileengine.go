// Package fileengine implements component H: the write/read/delete
// orchestration that chains every other component into one file operation
// (§4.H). Grounded on internal/crypto/chunked.go's streaming-pipeline shape
// — a chunk is the unit of work, processed in index order for sealing,
// reported through a progress callback, and checked for cancellation at
// each chunk boundary — generalized here from "encrypt chunks" to "seal,
// erasure-encode, secret-share, and disperse chunks."
package fileengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/chunkcipher"
	"github.com/dreamware/msscs/internal/compression"
	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/erasure"
	"github.com/dreamware/msscs/internal/identity"
	"github.com/dreamware/msscs/internal/ids"
	"github.com/dreamware/msscs/internal/manifest"
	"github.com/dreamware/msscs/internal/placement"
	"github.com/dreamware/msscs/internal/secretshare"
)

// ProgressFunc is invoked at each chunk boundary during Write and Read with
// the number of payload bytes handled so far and the total (§4.H step 6).
type ProgressFunc func(bytesProcessed, totalBytes int64)

// Engine wires Compression, ChunkCipher, ErasureCode, SecretShare,
// BlockStore, Placement, and the manifest into the three file-level
// operations of §4.H, for one unlocked identity.
//
// Manifest anchoring note (§9 "Chunk chain direction" / Open Questions):
// the chain links each chunk to its *predecessor* (chunk 0's prev_uuid is
// nil; chunk i's prev_hash is hash(env_{i-1})). For "follow prev_uuid
// backward until prev_uuid == None" to ever enumerate more than one chunk,
// the manifest's anchor must be the *last* chunk sealed, not chunk 0 — so
// that is what Engine persists, and this package calls the recorded id the
// "anchor" rather than "cid_0".
type Engine struct {
	identity    *identity.UnlockedIdentity
	store       *blockstore.Store
	placement   *placement.Placement
	manifest    *manifest.Manifest
	descriptors *descriptorStore
	cfg         config.PipelineConfig
	log         logrus.FieldLogger
}

// New constructs an Engine. descriptorPath is the on-disk location of the
// chunk-dispersal metadata index (conventionally "descriptors.json"
// alongside manifest.json). log may be nil to use logrus's standard logger.
func New(ident *identity.UnlockedIdentity, store *blockstore.Store, place *placement.Placement, man *manifest.Manifest, descriptorPath string, cfg config.PipelineConfig, log logrus.FieldLogger) (*Engine, error) {
	descriptors, err := loadDescriptorStore(descriptorPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		identity:    ident,
		store:       store,
		placement:   place,
		manifest:    man,
		descriptors: descriptors,
		cfg:         cfg,
		log:         log,
	}, nil
}

func (e *Engine) owner() string { return e.identity.UserID().String() }

// Write implements §4.H Write: compress, chunk, chain-seal, disperse every
// chunk envelope's shards and shares, then persist the manifest entry.
func (e *Engine) Write(ctx context.Context, path string, data []byte, progress ProgressFunc) error {
	var (
		payload []byte
		algo    compression.Algorithm
	)
	if e.cfg.CompressionEnabled {
		var err error
		payload, algo, err = compression.Compress(data)
		if err != nil {
			return fmt.Errorf("fileengine: compress %s: %w", path, err)
		}
	} else {
		payload, algo = data, compression.None
	}

	chunks := splitChunks(payload, e.cfg.ChunkSize)
	total := int64(len(payload))

	var (
		prevUUID    *uuid.UUID
		prevHash    ids.ContentId
		prevChunkID *ids.ContentId
		published   []ids.ContentId
		anchor      ids.ContentId
	)

	rollback := func() {
		for _, cid := range published {
			if err := e.store.Unpin(cid, blockstore.PinUser, e.owner()); err != nil {
				e.log.WithError(err).WithField("cid", cid.String()).Warn("fileengine: best-effort unpin failed during write rollback")
			}
		}
	}

	for i, chunk := range chunks {
		meta := chunkcipher.Metadata{PlaintextLen: uint32(len(chunk)), CompressedLen: uint32(len(chunk))}
		if i == 0 {
			meta.PlaintextLen = uint32(len(data))
			meta.CompressedLen = uint32(len(payload))
			meta.ContentType = compressionAlgoTag(algo)
		}

		env, err := chunkcipher.Seal(chunk, e.identity, uint32(i), prevUUID, prevHash, meta)
		if err != nil {
			rollback()
			return fmt.Errorf("fileengine: seal chunk %d of %s: %w", i, path, err)
		}

		envRaw, err := env.MarshalBinary()
		if err != nil {
			rollback()
			return fmt.Errorf("fileengine: marshal chunk %d envelope: %w", i, err)
		}

		chunkID, shardIDs, shareIDsByShard, err := e.disperse(ctx, envRaw, &published)
		if err != nil {
			rollback()
			return err
		}

		if err := e.descriptors.Put(ChunkDescriptor{
			ChunkID:         chunkID,
			PrevChunkID:     prevChunkID,
			ShardIDs:        shardIDs,
			ShareIDsByShard: shareIDsByShard,
		}); err != nil {
			rollback()
			return fmt.Errorf("fileengine: persist descriptor for chunk %d: %w", i, err)
		}

		prevHash = chunkID
		chunkUUID := env.UUID
		prevUUID = &chunkUUID
		prevChunkID = &chunkID
		anchor = chunkID

		if progress != nil {
			progress(sumChunkLens(chunks[:i+1]), total)
		}

		if i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				rollback()
				return engine.ErrCancelled
			default:
			}
		}
	}

	if err := e.manifest.Put(path, anchor); err != nil {
		rollback()
		return fmt.Errorf("fileengine: persist manifest entry for %s: %w", path, err)
	}
	return nil
}

// disperse implements §4.H Write step 4 for one chunk envelope's serialized
// bytes: publish the envelope itself, erasure-encode it into K+M shards,
// publish each shard, secret-share each shard into N shares, and publish
// each share. Every published content id is appended to *published so a
// cancelled write can roll them back.
func (e *Engine) disperse(ctx context.Context, envRaw []byte, published *[]ids.ContentId) (ids.ContentId, []ids.ContentId, [][]ids.ContentId, error) {
	chunkID, err := e.placement.Publish(ctx, envRaw, e.owner())
	if err != nil {
		return ids.ContentId{}, nil, nil, fmt.Errorf("fileengine: publish chunk envelope: %w", err)
	}
	*published = append(*published, chunkID)

	shards, err := erasure.Encode(envRaw, e.cfg.ErasureK, e.cfg.ErasureM)
	if err != nil {
		return ids.ContentId{}, nil, nil, fmt.Errorf("fileengine: erasure-encode chunk envelope: %w", err)
	}

	shardIDs := make([]ids.ContentId, 0, len(shards))
	shareIDsByShard := make([][]ids.ContentId, 0, len(shards))
	for _, shard := range shards {
		shardRaw, err := shard.MarshalBinary()
		if err != nil {
			return ids.ContentId{}, nil, nil, fmt.Errorf("fileengine: marshal shard: %w", err)
		}
		shardID, err := e.placement.Publish(ctx, shardRaw, e.owner())
		if err != nil {
			return ids.ContentId{}, nil, nil, fmt.Errorf("fileengine: publish shard: %w", err)
		}
		*published = append(*published, shardID)
		shardIDs = append(shardIDs, shardID)

		shares, err := secretshare.Fragment(shardRaw, e.cfg.ShareThreshold, e.cfg.ShareTotal)
		if err != nil {
			return ids.ContentId{}, nil, nil, fmt.Errorf("fileengine: fragment shard: %w", err)
		}

		shareIDs := make([]ids.ContentId, 0, len(shares))
		for _, share := range shares {
			shareRaw, err := share.MarshalBinary()
			if err != nil {
				return ids.ContentId{}, nil, nil, fmt.Errorf("fileengine: marshal share: %w", err)
			}
			shareID, err := e.placement.Publish(ctx, shareRaw, e.owner())
			if err != nil {
				return ids.ContentId{}, nil, nil, fmt.Errorf("fileengine: publish share: %w", err)
			}
			*published = append(*published, shareID)
			shareIDs = append(shareIDs, shareID)
		}
		shareIDsByShard = append(shareIDsByShard, shareIDs)
	}

	return chunkID, shardIDs, shareIDsByShard, nil
}

// Read implements §4.H Read: resolve the manifest anchor, walk the chain
// backward to enumerate every chunk, reassemble each (directly or via
// erasure/secret-share reconstruction), open its envelope, concatenate in
// index order, and decompress.
func (e *Engine) Read(ctx context.Context, path string, progress ProgressFunc) ([]byte, error) {
	anchor, err := e.manifest.Get(path)
	if err != nil {
		return nil, err
	}

	// Walk backward from the anchor (the last chunk sealed) to chunk 0,
	// collecting envelopes in descending index order.
	var envelopes []*chunkcipher.Envelope
	cur := anchor
	for {
		select {
		case <-ctx.Done():
			return nil, engine.ErrCancelled
		default:
		}

		envRaw, err := e.resolveChunkEnvelope(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("fileengine: resolve chunk %s: %w", cur.String(), err)
		}
		env, err := chunkcipher.UnmarshalEnvelope(envRaw)
		if err != nil {
			return nil, fmt.Errorf("fileengine: decode chunk %s: %w", cur.String(), err)
		}
		envelopes = append(envelopes, env)

		if env.PrevUUID == nil {
			break
		}
		cur = env.PrevHash
	}

	// Reverse into ascending index order for reassembly.
	for i, j := 0, len(envelopes)-1; i < j; i, j = i+1, j-1 {
		envelopes[i], envelopes[j] = envelopes[j], envelopes[i]
	}

	var algo compression.Algorithm
	var compressedLen uint32
	payload := make([]byte, 0, len(envelopes))
	var processed int64
	for idx, env := range envelopes {
		plaintext, err := chunkcipher.Open(env, e.identity)
		if err != nil {
			return nil, fmt.Errorf("fileengine: open chunk %d of %s: %w", idx, path, err)
		}
		if idx == 0 {
			algo = parseCompressionAlgoTag(env.Metadata.ContentType)
			compressedLen = env.Metadata.CompressedLen
		}
		payload = append(payload, plaintext...)
		processed += int64(len(plaintext))
		if progress != nil {
			progress(processed, int64(compressedLen))
		}
	}

	data, err := compression.Decompress(payload, algo)
	if err != nil {
		return nil, fmt.Errorf("fileengine: decompress %s: %w", path, err)
	}
	return data, nil
}

// resolveChunkEnvelope implements §4.H Read step 3: try to fetch the
// envelope's bytes directly (BlockStore, then the routing layer, via
// Placement.Fetch); failing that, reconstruct it from its erasure shards,
// reconstructing any missing shard from its secret shares in turn.
func (e *Engine) resolveChunkEnvelope(ctx context.Context, chunkID ids.ContentId) ([]byte, error) {
	if envRaw, err := e.placement.Fetch(ctx, chunkID); err == nil {
		return envRaw, nil
	}

	desc, err := e.descriptors.Get(chunkID)
	if err != nil {
		return nil, engine.ErrInsufficientReplicas
	}

	var (
		collected   []erasure.Shard
		originalLen int
	)
	for shardIdx, shardID := range desc.ShardIDs {
		shard, ok := e.fetchOrReconstructShard(ctx, shardID, desc.ShareIDsByShard[shardIdx])
		if !ok {
			continue
		}
		collected = append(collected, shard)
		originalLen = shard.OriginalLen
		if len(collected) >= e.cfg.ErasureK {
			break
		}
	}

	if len(collected) < e.cfg.ErasureK {
		return nil, engine.ErrInsufficientReplicas
	}

	envRaw, err := erasure.Decode(collected, originalLen)
	if err != nil {
		return nil, err
	}

	// Best-effort cache of the reconstructed envelope so a repeat read
	// does not pay reconstruction cost again (§4.H Read step 3).
	cacheCID := e.store.Put(envRaw)
	if err := e.store.Pin(cacheCID, blockstore.PinCache, e.owner(), nil); err != nil {
		e.log.WithError(err).WithField("cid", cacheCID.String()).Debug("fileengine: could not cache-pin reconstructed envelope")
	}

	return envRaw, nil
}

func (e *Engine) fetchOrReconstructShard(ctx context.Context, shardID ids.ContentId, shareIDs []ids.ContentId) (erasure.Shard, bool) {
	if shardRaw, err := e.placement.Fetch(ctx, shardID); err == nil {
		shard, err := erasure.UnmarshalShard(shardRaw)
		if err == nil {
			return shard, true
		}
	}

	var shares []secretshare.Share
	for _, shareID := range shareIDs {
		shareRaw, err := e.placement.Fetch(ctx, shareID)
		if err != nil {
			continue
		}
		share, err := secretshare.UnmarshalShare(shareRaw)
		if err != nil {
			continue
		}
		shares = append(shares, share)
		if len(shares) >= e.cfg.ShareThreshold {
			break
		}
	}
	if len(shares) < e.cfg.ShareThreshold {
		return erasure.Shard{}, false
	}

	shardRaw, err := secretshare.Reconstruct(shares)
	if err != nil {
		return erasure.Shard{}, false
	}
	shard, err := erasure.UnmarshalShard(shardRaw)
	if err != nil {
		return erasure.Shard{}, false
	}
	return shard, true
}

// Delete implements §4.H Delete: remove the manifest entry and best-effort
// unpin every User-pinned block in the chain locally. DHT copies persist
// until their own pins expire — this is not deletion in a strong sense,
// which content-addressed P2P storage cannot offer on its own.
func (e *Engine) Delete(ctx context.Context, path string) error {
	anchor, err := e.manifest.Get(path)
	if err != nil {
		return err
	}

	cur := anchor
	for {
		desc, err := e.descriptors.Get(cur)
		if err != nil {
			e.log.WithField("chunk", cur.String()).Debug("fileengine: no descriptor for chunk during delete, unpinning envelope only")
		}

		if err := e.store.Unpin(cur, blockstore.PinUser, e.owner()); err != nil {
			e.log.WithError(err).WithField("cid", cur.String()).Warn("fileengine: best-effort unpin of chunk envelope failed")
		}
		for i, shardID := range desc.ShardIDs {
			if err := e.store.Unpin(shardID, blockstore.PinUser, e.owner()); err != nil {
				e.log.WithError(err).WithField("cid", shardID.String()).Warn("fileengine: best-effort unpin of shard failed")
			}
			for _, shareID := range desc.ShareIDsByShard[i] {
				if err := e.store.Unpin(shareID, blockstore.PinUser, e.owner()); err != nil {
					e.log.WithError(err).WithField("cid", shareID.String()).Warn("fileengine: best-effort unpin of share failed")
				}
			}
		}
		_ = e.descriptors.Delete(cur)

		if desc.PrevChunkID == nil {
			break
		}
		cur = *desc.PrevChunkID

		select {
		case <-ctx.Done():
			return engine.ErrCancelled
		default:
		}
	}

	return e.manifest.Delete(path)
}

// splitChunks divides payload into fixed-size chunks, always returning at
// least one (possibly empty) chunk so writing an empty file still produces
// a one-chunk chain (§8 boundary behavior: "write_file(empty) succeeds").
func splitChunks(payload []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = len(payload)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	if len(payload) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	return chunks
}

func sumChunkLens(chunks [][]byte) int64 {
	var n int64
	for _, c := range chunks {
		n += int64(len(c))
	}
	return n
}

func compressionAlgoTag(algo compression.Algorithm) string {
	switch algo {
	case compression.Zstd:
		return "zstd"
	default:
		return "none"
	}
}

func parseCompressionAlgoTag(tag string) compression.Algorithm {
	if tag == "zstd" {
		return compression.Zstd
	}
	return compression.None
}
