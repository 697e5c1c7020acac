// Package util provides the cursor-based byte reader shared by the
// leb128 codec and the wasm decoder.
package util

import "io"

// ByteReader walks a byte slice with an internal cursor, advancing by
// reference as bytes are consumed. It never copies the underlying
// slice.
type ByteReader struct {
	b   []byte
	pos uint32
}

// NewByteReader wraps b for sequential, cursor-based reads.
func NewByteReader(b []byte) *ByteReader {
	return &ByteReader{b: b}
}

// ReadByte reads and returns a single byte, advancing the cursor by one.
func (r *ByteReader) ReadByte() (byte, error) {
	if r.pos >= uint32(len(r.b)) {
		return 0, io.EOF
	}
	b := r.b[r.pos]
	r.pos++
	return b, nil
}

// ReadN reads n bytes, advancing the cursor by n. The returned slice
// aliases the reader's backing array; callers that need the bytes to
// outlive the module buffer must copy them.
func (r *ByteReader) ReadN(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.b)) {
		return nil, io.EOF
	}
	b := r.b[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Pos returns the current cursor offset into the underlying buffer.
func (r *ByteReader) Pos() uint32 {
	return r.pos
}

// Seek moves the cursor to an absolute offset.
func (r *ByteReader) Seek(pos uint32) {
	r.pos = pos
}

// Len returns the number of unread bytes remaining.
func (r *ByteReader) Len() uint32 {
	return uint32(len(r.b)) - r.pos
}

// Done reports whether the cursor has reached the end of the buffer.
func (r *ByteReader) Done() bool {
	return r.pos >= uint32(len(r.b))
}
