// Package secretshare implements component E: Shamir (T, N) threshold
// secret sharing over raw shard bytes, operating byte-by-byte in GF(2^8) —
// the same field the erasure coder uses, so both layers share one
// arithmetic model. Structurally grounded on
// other_examples/8f249da1_cyphar-paperback__pkg-shamir-shamir.go.go (each
// share carries its own metadata alongside its bytes, and shares are
// rejected as a set rather than individually when they don't belong
// together) but reimplemented over GF(2^8) instead of paperback's
// big-integer modular arithmetic, since the shards this seals are raw,
// fixed-length byte strings rather than variable-length blobs best modeled
// as one big integer.
//
// The entanglement proof (§3 Share, §9) is a hash of all N share byte
// strings from the same dealing; reconstruction refuses to mix shares
// whose proofs disagree before doing any secret math, promoting what the
// original source computed but never checked (§9) into a hard
// prerequisite.
package secretshare

import (
	"crypto/rand"
	"fmt"

	"github.com/dreamware/msscs/internal/codec"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

// Share is a Shamir-style secret share of a shard (§3 Share).
type Share struct {
	ShareIndex        int // 1..N
	Data              []byte
	Threshold         int // T
	Total             int // N
	EntanglementProof ids.ContentId
}

func validateParams(t, n int) error {
	if t < 2 || t > n || n > 255 {
		return fmt.Errorf("secretshare: invalid parameters T=%d N=%d (require 2<=T<=N<=255)", t, n)
	}
	return nil
}

// Fragment splits shardBytes into N Shamir shares such that any T
// reconstruct the original bytes and fewer than T reveal nothing
// information-theoretically (§4.E).
func Fragment(shardBytes []byte, t, n int) ([]Share, error) {
	if err := validateParams(t, n); err != nil {
		return nil, err
	}

	shareBytes := make([][]byte, n)
	for i := range shareBytes {
		shareBytes[i] = make([]byte, len(shardBytes))
	}

	coeffs := make([]byte, t)
	randBuf := make([]byte, t-1)
	for bi, secretByte := range shardBytes {
		if _, err := rand.Read(randBuf); err != nil {
			return nil, fmt.Errorf("secretshare: generate polynomial coefficients: %w", err)
		}
		coeffs[0] = secretByte
		copy(coeffs[1:], randBuf)

		for x := 1; x <= n; x++ {
			shareBytes[x-1][bi] = evalPoly(coeffs, byte(x))
		}
	}

	proof := entanglementProof(shareBytes)

	shares := make([]Share, n)
	for i := 0; i < n; i++ {
		shares[i] = Share{
			ShareIndex:        i + 1,
			Data:              shareBytes[i],
			Threshold:         t,
			Total:             n,
			EntanglementProof: proof,
		}
	}
	return shares, nil
}

// entanglementProof hashes all N share byte strings, in share-index order,
// into a single content id that binds the whole dealing.
func entanglementProof(shareBytes [][]byte) ids.ContentId {
	enc := codec.NewEncoder()
	for _, b := range shareBytes {
		enc.PutBytes(b)
	}
	return ids.Hash(enc.Bytes())
}

// evalPoly evaluates a polynomial with the given coefficients (low degree
// first) at x, using Horner's method in GF(2^8).
func evalPoly(coeffs []byte, x byte) byte {
	var result byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = gfAdd(gfMul(result, x), coeffs[i])
	}
	return result
}

// Reconstruct recovers the original shard bytes from at least T shares
// sharing an identical (T, N, entanglement proof). Mixing shares from
// different dealings fails ShareSetMismatch before any secret math runs;
// too few shares fails InsufficientShares with no partial output (§4.E,
// §8 boundary behavior).
func Reconstruct(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, engine.ErrInsufficientShares
	}

	t, n, proof := shares[0].Threshold, shares[0].Total, shares[0].EntanglementProof
	seen := make(map[int][]byte, len(shares))
	for _, s := range shares {
		if s.Threshold != t || s.Total != n || s.EntanglementProof != proof {
			return nil, engine.ErrShareSetMismatch
		}
		seen[s.ShareIndex] = s.Data
	}
	if len(seen) < t {
		return nil, engine.ErrInsufficientShares
	}

	indices := make([]byte, 0, t)
	dataList := make([][]byte, 0, t)
	for idx, data := range seen {
		if idx < 1 || idx > n {
			return nil, engine.ErrShareSetMismatch
		}
		indices = append(indices, byte(idx))
		dataList = append(dataList, data)
		if len(indices) == t {
			break
		}
	}

	shareLen := len(dataList[0])
	for _, d := range dataList {
		if len(d) != shareLen {
			return nil, engine.ErrShareSetMismatch
		}
	}

	coeffs := lagrangeCoefficientsAtZero(indices)

	out := make([]byte, shareLen)
	for bi := 0; bi < shareLen; bi++ {
		var acc byte
		for i, c := range coeffs {
			acc = gfAdd(acc, gfMul(c, dataList[i][bi]))
		}
		out[bi] = acc
	}
	return out, nil
}

// lagrangeCoefficientsAtZero computes, for each index x_i in xs, the
// Lagrange basis polynomial l_i evaluated at 0: prod_{j!=i} x_j/(x_i xor x_j)
// (GF(2^8) subtraction is XOR).
func lagrangeCoefficientsAtZero(xs []byte) []byte {
	out := make([]byte, len(xs))
	for i, xi := range xs {
		num := byte(1)
		den := byte(1)
		for j, xj := range xs {
			if i == j {
				continue
			}
			num = gfMul(num, xj)
			den = gfMul(den, gfAdd(xi, xj))
		}
		out[i] = gfDiv(num, den)
	}
	return out
}
