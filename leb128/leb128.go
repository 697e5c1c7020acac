// Package leb128 implements the LEB128 variable-length integer
// encodings used throughout the Wasm binary format:
// https://webassembly.github.io/spec/core/binary/values.html#binary-int
package leb128

import (
	"errors"

	"github.com/vertexdlt/microwasm/util"
)

// ErrOverlong is returned when a LEB128 sequence consumes more bytes
// than the requested bit width allows for.
var ErrOverlong = errors.New("leb128: encoding is too long for requested width")

// read accumulates 7 low bits per byte into increasing shift positions
// until a byte with a clear continuation bit is seen. When hasSign is
// set, the result is sign-extended from the final byte's sign bit
// (bit 6) if that bit is set and the accumulated shift is still below
// the requested width.
func read(br *util.ByteReader, width uint32, hasSign bool) (int64, error) {
	var (
		shift   uint32
		bytecnt uint32
		result  int64
		sign    int64 = -1
	)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		cur := int64(b)
		result |= (cur & 0x7f) << shift
		shift += 7
		sign <<= 7
		bytecnt++
		if cur&0x80 == 0 {
			break
		}
		if bytecnt >= (width+6)/7 {
			return 0, ErrOverlong
		}
	}
	if hasSign && shift < width && ((sign>>1)&result) != 0 {
		result |= sign
	}
	return result, nil
}

// ReadUint32 reads a LEB128-encoded unsigned 32-bit integer.
func ReadUint32(br *util.ByteReader) (uint32, error) {
	v, err := read(br, 32, false)
	return uint32(v), err
}

// ReadInt32 reads a LEB128-encoded signed 32-bit integer,
// sign-extending from the terminating byte when required.
func ReadInt32(br *util.ByteReader) (int32, error) {
	v, err := read(br, 32, true)
	return int32(v), err
}
