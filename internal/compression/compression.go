// Package compression implements component B: data-type-adaptive lossless
// compression that skips itself when it would not help. Grounded on the
// "compress before encrypt, tag the algorithm in object metadata" framing
// of internal/crypto/chunked.go's manifest (compressed_len is carried
// alongside plaintext_len exactly as ChunkManifest does), using
// github.com/klauspost/compress/zstd as the dictionary coder — promoted
// from the teacher's indirect requires, the idiomatic Go zstd library.
package compression

import (
	"bytes"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/dreamware/msscs/internal/engine"
)

// Algorithm tags a chunk's compression. Stored in ChunkEnvelope metadata and
// required verbatim by Decompress.
type Algorithm uint8

const (
	// None means the bytes are stored exactly as given to Compress.
	None Algorithm = iota
	// Zstd means the bytes were compressed with zstd at the level Classify
	// picked (balanced for Text/Code, fast for Binary).
	Zstd
)

// Classification is the heuristic bucket Classify assigns to a payload.
type Classification int

const (
	Unknown Classification = iota
	Text
	Code
	Binary
	AlreadyCompressed
	HighEntropy
)

// MinCompress is the smallest payload Compress will attempt to shrink;
// anything smaller is returned unchanged (§4.B policy 1).
const MinCompress = 1024

// entropySampleSize bounds how much of the payload Classify inspects for
// its entropy and printable-byte estimates (§4.B policy 2b/2c).
const entropySampleSize = 4096

// highEntropyThreshold is the Shannon-entropy cutoff, in bits/byte, above
// which a payload is treated as already maximally compressed.
const highEntropyThreshold = 7.5

// printableThreshold is the fraction of printable bytes above which a
// payload is classified Text/Code rather than Binary.
const printableThreshold = 0.9

var magicTable = []struct {
	prefix []byte
	name   string
}{
	{[]byte{0x1f, 0x8b}, "gzip"},
	{[]byte{0x50, 0x4b, 0x03, 0x04}, "zip"},
	{[]byte{0x89, 0x50, 0x4e, 0x47}, "png"},
	{[]byte{0xff, 0xd8, 0xff}, "jpeg"},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, "zstd"},
	{[]byte{0x42, 0x5a, 0x68}, "bzip2"},
	{[]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, "xz"},
	{[]byte{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c}, "7z"},
	{[]byte{0x47, 0x49, 0x46, 0x38}, "gif"},
	{[]byte{0x25, 0x50, 0x44, 0x46, 0x2d}, "pdf"},
	{[]byte{0x49, 0x44, 0x33}, "mp3"},
	{[]byte{0x52, 0x61, 0x72, 0x21}, "rar"},
}

// Classify buckets a payload by (a) magic-byte sniffing, (b) Shannon
// entropy over the first ~4 KiB, (c) fraction of printable bytes, per
// §4.B policy 2.
func Classify(data []byte) Classification {
	for _, m := range magicTable {
		if bytes.HasPrefix(data, m.prefix) {
			return AlreadyCompressed
		}
	}
	if len(data) == 0 {
		return Unknown
	}

	sample := data
	if len(sample) > entropySampleSize {
		sample = sample[:entropySampleSize]
	}

	if shannonEntropy(sample) >= highEntropyThreshold {
		return HighEntropy
	}

	if printableFraction(sample) > printableThreshold {
		if looksLikeCode(sample) {
			return Code
		}
		return Text
	}

	return Binary
}

func shannonEntropy(sample []byte) float64 {
	var counts [256]int
	for _, b := range sample {
		counts[b]++
	}
	n := float64(len(sample))
	if n == 0 {
		return 0
	}
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func printableFraction(sample []byte) float64 {
	if len(sample) == 0 {
		return 0
	}
	printable := 0
	for _, b := range sample {
		if (b >= 0x20 && b <= 0x7e) || b == '\t' || b == '\n' || b == '\r' {
			printable++
		}
	}
	return float64(printable) / float64(len(sample))
}

// looksLikeCode is a cheap, non-authoritative nudge from Text toward Code:
// a meaningful fraction of lines carrying braces/semicolons/indentation
// characteristic of source files. It never changes the chosen algorithm
// (both buckets compress the same way) — only classification diagnostics.
func looksLikeCode(sample []byte) bool {
	hits := bytes.Count(sample, []byte("{")) + bytes.Count(sample, []byte(";")) + bytes.Count(sample, []byte("=>"))
	lines := bytes.Count(sample, []byte("\n")) + 1
	return hits*4 >= lines
}

// Compress applies §4.B's policy: skip tiny payloads, skip payloads that
// classify as already compressed or high entropy, otherwise zstd-compress
// and fall back to None if compression didn't actually shrink the data.
func Compress(data []byte) ([]byte, Algorithm, error) {
	if len(data) < MinCompress {
		return data, None, nil
	}

	class := Classify(data)
	if class == AlreadyCompressed || class == HighEntropy {
		return data, None, nil
	}

	level := zstd.SpeedBetterCompression
	if class == Binary || class == Unknown {
		level = zstd.SpeedFastest
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, None, fmt.Errorf("compression: create encoder: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, None, nil
	}
	return compressed, Zstd, nil
}

// Decompress reverses Compress given the algorithm tag it returned.
func Decompress(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case None:
		return data, nil
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("compression: %w: create decoder: %v", engine.ErrCompression, err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("compression: %w: %v", engine.ErrCompression, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compression: %w: unknown algorithm tag %d", engine.ErrCompression, algo)
	}
}
