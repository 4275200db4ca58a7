package codec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id := uuid.New()
	prev := uuid.New()

	enc := NewEncoder()
	enc.PutUint8(7)
	enc.PutUint32(1234)
	enc.PutUint64(9876543210)
	enc.PutBool(true)
	enc.PutUUID(id)
	enc.PutOptionalUUID(&prev)
	enc.PutBytes([]byte("hello"))
	enc.PutString("a path/to/file.bin")
	enc.PutFixed(make([]byte, 32))

	dec := NewDecoder(enc.Bytes())
	require.Equal(t, uint8(7), dec.GetUint8())
	require.Equal(t, uint32(1234), dec.GetUint32())
	require.Equal(t, uint64(9876543210), dec.GetUint64())
	require.Equal(t, true, dec.GetBool())
	require.Equal(t, id, dec.GetUUID())
	gotPrev := dec.GetOptionalUUID()
	require.NotNil(t, gotPrev)
	require.Equal(t, prev, *gotPrev)
	require.Equal(t, []byte("hello"), dec.GetBytes())
	require.Equal(t, "a path/to/file.bin", dec.GetString())
	require.Equal(t, make([]byte, 32), dec.GetFixed(32))
	require.NoError(t, dec.Err())
	require.Equal(t, 0, dec.Remaining())
}

func TestOptionalUUIDAbsent(t *testing.T) {
	enc := NewEncoder()
	enc.PutOptionalUUID(nil)

	dec := NewDecoder(enc.Bytes())
	require.Nil(t, dec.GetOptionalUUID())
	require.NoError(t, dec.Err())
}

func TestDecodeTruncatedFailsClosed(t *testing.T) {
	enc := NewEncoder()
	enc.PutUint32(100)
	enc.PutFixed([]byte("short"))

	dec := NewDecoder(enc.Bytes())
	got := dec.GetBytes()
	require.Nil(t, got)
	require.Error(t, dec.Err())
}

func TestDecodeRejectsOversizedLengthPrefix(t *testing.T) {
	enc := NewEncoder()
	enc.PutUint32(1 << 31)

	dec := NewDecoder(enc.Bytes())
	require.Nil(t, dec.GetBytes())
	require.Error(t, dec.Err())
}

func TestDeterministicEncodingIsStable(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	build := func() []byte {
		enc := NewEncoder()
		enc.PutUUID(id)
		enc.PutUint32(42)
		enc.PutBytes([]byte{0x01, 0x02, 0x03})
		return enc.Bytes()
	}
	require.Equal(t, build(), build())
}
