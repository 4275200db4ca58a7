package secretshare

import (
	"fmt"

	"github.com/dreamware/msscs/internal/codec"
	"github.com/dreamware/msscs/internal/engine"
)

// MarshalBinary encodes a Share with the project's stable binary encoding.
func (s Share) MarshalBinary() ([]byte, error) {
	enc := codec.NewEncoder()
	enc.PutUint32(uint32(s.ShareIndex))
	enc.PutUint32(uint32(s.Threshold))
	enc.PutUint32(uint32(s.Total))
	enc.PutFixed(s.EntanglementProof[:])
	enc.PutBytes(s.Data)
	return enc.Bytes(), nil
}

// UnmarshalShare decodes a Share written by MarshalBinary.
func UnmarshalShare(b []byte) (Share, error) {
	dec := codec.NewDecoder(b)
	s := Share{
		ShareIndex: int(dec.GetUint32()),
		Threshold:  int(dec.GetUint32()),
		Total:      int(dec.GetUint32()),
	}
	copy(s.EntanglementProof[:], dec.GetFixed(32))
	s.Data = dec.GetBytes()
	if dec.Err() != nil {
		return Share{}, fmt.Errorf("secretshare: %w: %v", engine.ErrShareSetMismatch, dec.Err())
	}
	return s, nil
}
