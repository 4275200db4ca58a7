// Package erasure implements component D: a Reed-Solomon (K, M) erasure
// code over GF(2^8), producing K+M equal-size shards from which any K
// suffice to reconstruct the original bytes. Grounded on
// other_examples/83c65e58_xtaci-kcptun__...fec.go.go, which reaches for
// github.com/klauspost/reedsolomon for exactly this shape rather than
// hand-rolling Galois-field matrix inversion — the source's own hand-rolled
// RS code is flagged in §9 as under-tested and not to be reproduced.
package erasure

import (
	"bytes"
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/dreamware/msscs/internal/engine"
)

// Shard is one of K+M equal-length pieces produced by Encode for a single
// chunk envelope (§3 Shard).
type Shard struct {
	ShardIndex  int
	Data        []byte
	K           int
	M           int
	OriginalLen int
}

func validateParams(k, m int) error {
	if k < 1 || m < 1 || k+m > 255 {
		return fmt.Errorf("erasure: invalid parameters K=%d M=%d (require K>=1, M>=1, K+M<=255)", k, m)
	}
	return nil
}

// Encode splits data into K data shards (zero-padded to equal length) and
// computes M parity shards in GF(2^8), per §4.D.
func Encode(data []byte, k, m int) ([]Shard, error) {
	if err := validateParams(k, m); err != nil {
		return nil, err
	}

	if len(data) == 0 {
		out := make([]Shard, k+m)
		for i := range out {
			out[i] = Shard{ShardIndex: i, Data: []byte{}, K: k, M: m, OriginalLen: 0}
		}
		return out, nil
	}

	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, fmt.Errorf("erasure: construct encoder K=%d M=%d: %w", k, m, err)
	}

	raw, err := enc.Split(data)
	if err != nil {
		return nil, fmt.Errorf("erasure: split payload: %w", err)
	}
	if err := enc.Encode(raw); err != nil {
		return nil, fmt.Errorf("erasure: compute parity shards: %w", err)
	}

	out := make([]Shard, len(raw))
	for i, d := range raw {
		out[i] = Shard{ShardIndex: i, Data: d, K: k, M: m, OriginalLen: len(data)}
	}
	return out, nil
}

// Decode reconstructs the original bytes from any K of the K+M shards. It
// fails ShardConfigMismatch if candidates disagree on (K, M, original_len),
// InsufficientShards if fewer than K distinct indices are present, and
// CorruptShard if more than K shards were supplied and they are mutually
// inconsistent (§4.D failure modes).
func Decode(shards []Shard, originalLen int) ([]byte, error) {
	if len(shards) == 0 {
		return nil, engine.ErrInsufficientShards
	}
	if originalLen == 0 {
		return []byte{}, nil
	}

	k, m := shards[0].K, shards[0].M
	for _, s := range shards {
		if s.K != k || s.M != m || s.OriginalLen != originalLen {
			return nil, fmt.Errorf("erasure: %w", engine.ErrShardConfigMismatch)
		}
	}
	if err := validateParams(k, m); err != nil {
		return nil, fmt.Errorf("erasure: %w: %v", engine.ErrShardConfigMismatch, err)
	}

	total := k + m
	byIndex := make(map[int][]byte, len(shards))
	for _, s := range shards {
		if s.ShardIndex < 0 || s.ShardIndex >= total {
			return nil, fmt.Errorf("erasure: %w: shard index %d out of range", engine.ErrShardConfigMismatch, s.ShardIndex)
		}
		byIndex[s.ShardIndex] = s.Data
	}
	if len(byIndex) < k {
		return nil, engine.ErrInsufficientShards
	}
	redundant := len(byIndex) > k

	raw := make([][]byte, total)
	for idx, d := range byIndex {
		raw[idx] = d
	}

	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, fmt.Errorf("erasure: construct decoder K=%d M=%d: %w", k, m, err)
	}

	if err := enc.ReconstructData(raw); err != nil {
		return nil, fmt.Errorf("erasure: %w: %v", engine.ErrInsufficientShards, err)
	}

	if redundant {
		if err := enc.Reconstruct(raw); err != nil {
			return nil, fmt.Errorf("erasure: %w: %v", engine.ErrCorruptShard, err)
		}
		ok, err := enc.Verify(raw)
		if err != nil || !ok {
			return nil, fmt.Errorf("erasure: %w", engine.ErrCorruptShard)
		}
	}

	var out bytes.Buffer
	if err := enc.Join(&out, raw, originalLen); err != nil {
		return nil, fmt.Errorf("erasure: %w: %v", engine.ErrInsufficientShards, err)
	}
	return out.Bytes(), nil
}
