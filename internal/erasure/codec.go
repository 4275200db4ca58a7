package erasure

import (
	"fmt"

	"github.com/dreamware/msscs/internal/codec"
	"github.com/dreamware/msscs/internal/engine"
)

// MarshalBinary encodes a Shard with the project's stable binary encoding
// so its hash is a valid content id (§3 Block).
func (s Shard) MarshalBinary() ([]byte, error) {
	enc := codec.NewEncoder()
	enc.PutUint32(uint32(s.ShardIndex))
	enc.PutUint32(uint32(s.K))
	enc.PutUint32(uint32(s.M))
	enc.PutUint32(uint32(s.OriginalLen))
	enc.PutBytes(s.Data)
	return enc.Bytes(), nil
}

// UnmarshalShard decodes a Shard written by MarshalBinary.
func UnmarshalShard(b []byte) (Shard, error) {
	dec := codec.NewDecoder(b)
	s := Shard{
		ShardIndex:  int(dec.GetUint32()),
		K:           int(dec.GetUint32()),
		M:           int(dec.GetUint32()),
		OriginalLen: int(dec.GetUint32()),
	}
	s.Data = dec.GetBytes()
	if dec.Err() != nil {
		return Shard{}, fmt.Errorf("erasure: %w: %v", engine.ErrShardConfigMismatch, dec.Err())
	}
	return s, nil
}
