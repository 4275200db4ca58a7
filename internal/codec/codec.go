// Package codec implements the single stable binary encoding used for every
// structured payload the engine hashes and stores: chunk envelopes, shards,
// shares, and manifest records (§6). Encoding is length-prefixed fields,
// little-endian integers, UUIDs as 16 raw bytes, and byte arrays prefixed by
// a u32 length. Two implementations producing bit-identical encodings of the
// same logical record produce identical content ids, so nothing here may
// vary by platform, map iteration order, or field order.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Encoder appends fields to an internal buffer in the wire order callers
// choose; Bytes returns the accumulated encoding.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the bytes written so far. The returned slice aliases the
// encoder's internal buffer and must be copied before further writes.
func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

// PutUint8 appends a single byte.
func (e *Encoder) PutUint8(v uint8) { e.buf.WriteByte(v) }

// PutUint32 appends a little-endian uint32.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

// PutUint64 appends a little-endian uint64.
func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// PutBool appends a single byte, 1 for true and 0 for false.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// PutBytes appends a u32 length prefix followed by the bytes themselves.
func (e *Encoder) PutBytes(b []byte) {
	e.PutUint32(uint32(len(b)))
	e.buf.Write(b)
}

// PutFixed appends exactly len(b) bytes with no length prefix; used for
// fixed-size fields such as 32-byte hashes where the length is implicit in
// the schema.
func (e *Encoder) PutFixed(b []byte) { e.buf.Write(b) }

// PutUUID appends the 16 raw bytes of id.
func (e *Encoder) PutUUID(id uuid.UUID) { e.buf.Write(id[:]) }

// PutOptionalUUID appends a presence byte followed by 16 raw bytes (zero
// bytes when absent) for an optional field such as ChunkEnvelope.PrevUUID.
func (e *Encoder) PutOptionalUUID(id *uuid.UUID) {
	if id == nil {
		e.PutBool(false)
		var zero [16]byte
		e.buf.Write(zero[:])
		return
	}
	e.PutBool(true)
	e.buf.Write(id[:])
}

// PutString appends a u32 length prefix followed by the UTF-8 bytes of s.
func (e *Encoder) PutString(s string) { e.PutBytes([]byte(s)) }

// Decoder reads fields off a byte slice in the order they were written by
// Encoder, returning an error (wrapping io.ErrUnexpectedEOF) on truncation.
type Decoder struct {
	r   *bytes.Reader
	err error
}

// NewDecoder returns a Decoder over b.
func NewDecoder(b []byte) *Decoder { return &Decoder{r: bytes.NewReader(b)} }

// Err returns the first error encountered by any Get* call, or nil.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Remaining reports how many bytes are left unread.
func (d *Decoder) Remaining() int { return d.r.Len() }

// GetUint8 reads a single byte.
func (d *Decoder) GetUint8() uint8 {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail(fmt.Errorf("codec: read uint8: %w", io.ErrUnexpectedEOF))
		return 0
	}
	return b
}

// GetUint32 reads a little-endian uint32.
func (d *Decoder) GetUint32() uint32 {
	if d.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.fail(fmt.Errorf("codec: read uint32: %w", io.ErrUnexpectedEOF))
		return 0
	}
	return binary.LittleEndian.Uint32(b[:])
}

// GetUint64 reads a little-endian uint64.
func (d *Decoder) GetUint64() uint64 {
	if d.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.fail(fmt.Errorf("codec: read uint64: %w", io.ErrUnexpectedEOF))
		return 0
	}
	return binary.LittleEndian.Uint64(b[:])
}

// GetBool reads a single byte as a boolean.
func (d *Decoder) GetBool() bool { return d.GetUint8() != 0 }

// maxFieldBytes bounds a single length-prefixed field to guard against a
// corrupt or adversarial length prefix forcing a huge allocation.
const maxFieldBytes = 1 << 30

// GetBytes reads a u32 length prefix followed by that many bytes.
func (d *Decoder) GetBytes() []byte {
	if d.err != nil {
		return nil
	}
	n := d.GetUint32()
	if d.err != nil {
		return nil
	}
	if n > maxFieldBytes {
		d.fail(fmt.Errorf("codec: field length %d exceeds limit", n))
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.fail(fmt.Errorf("codec: read bytes(%d): %w", n, io.ErrUnexpectedEOF))
		return nil
	}
	return b
}

// GetFixed reads exactly n bytes with no length prefix.
func (d *Decoder) GetFixed(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.fail(fmt.Errorf("codec: read fixed(%d): %w", n, io.ErrUnexpectedEOF))
		return nil
	}
	return b
}

// GetUUID reads 16 raw bytes as a uuid.UUID.
func (d *Decoder) GetUUID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], d.GetFixed(16))
	return id
}

// GetOptionalUUID reads a presence byte followed by 16 raw bytes, returning
// nil when the presence byte is false.
func (d *Decoder) GetOptionalUUID() *uuid.UUID {
	present := d.GetBool()
	id := d.GetUUID()
	if d.err != nil || !present {
		return nil
	}
	out := id
	return &out
}

// GetString reads a u32-length-prefixed UTF-8 string.
func (d *Decoder) GetString() string { return string(d.GetBytes()) }
