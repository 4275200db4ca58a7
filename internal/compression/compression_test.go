package compression

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/engine"
)

func TestCompressDecompressRoundTripForAnyInput(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("short"),
		[]byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200)),
	}
	random := make([]byte, 8192)
	_, err := rand.Read(random)
	require.NoError(t, err)
	cases = append(cases, random)

	for _, input := range cases {
		out, algo, err := Compress(input)
		require.NoError(t, err)
		round, err := Decompress(out, algo)
		require.NoError(t, err)
		require.True(t, bytes.Equal(input, round))
	}
}

func TestCompressSkipsTinyPayloads(t *testing.T) {
	data := []byte("small payload under the threshold")
	out, algo, err := Compress(data)
	require.NoError(t, err)
	require.Equal(t, None, algo)
	require.Equal(t, data, out)
}

func TestCompressSkipsHighEntropyData(t *testing.T) {
	data := make([]byte, 8192)
	_, err := rand.Read(data)
	require.NoError(t, err)

	out, algo, err := Compress(data)
	require.NoError(t, err)
	require.Equal(t, None, algo)
	require.Equal(t, data, out)
}

func TestCompressShrinksRepetitiveText(t *testing.T) {
	data := []byte(strings.Repeat("aaaaaaaaaa", 1000))
	out, algo, err := Compress(data)
	require.NoError(t, err)
	require.Equal(t, Zstd, algo)
	require.Less(t, len(out), len(data))
}

func TestClassifyRecognizesMagicBytes(t *testing.T) {
	gzipHeader := []byte{0x1f, 0x8b, 0x08, 0x00}
	require.Equal(t, AlreadyCompressed, Classify(gzipHeader))
}

func TestClassifyText(t *testing.T) {
	text := []byte(strings.Repeat("Hello, decentralized world! ", 100))
	require.Equal(t, Text, Classify(text))
}

func TestDecompressUnknownTagFails(t *testing.T) {
	_, err := Decompress([]byte("garbage"), Algorithm(99))
	require.True(t, errors.Is(err, engine.ErrCompression))
}

func TestDecompressMalformedZstdFails(t *testing.T) {
	_, err := Decompress([]byte("not zstd data"), Zstd)
	require.True(t, errors.Is(err, engine.ErrCompression))
}
