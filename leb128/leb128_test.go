package leb128

import (
	"testing"

	"github.com/vertexdlt/microwasm/util"
)

func TestReadUint32(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"single byte", []byte{0x05}, 5},
		{"three bytes", []byte{0xe5, 0x8e, 0x26}, 624485},
		{"127", []byte{0x7f}, 127},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadUint32(util.NewByteReader(tt.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadUint32(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadInt32(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want int32
	}{
		{"0x7F is -1", []byte{0x7f}, -1},
		{"0xFF 0x00 is 127", []byte{0xff, 0x00}, 127},
		{"four byte 8388608", []byte{0x80, 0x80, 0x80, 0x04}, 8388608},
		{"small positive", []byte{0x02}, 2},
		{"small negative", []byte{0x7e}, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadInt32(util.NewByteReader(tt.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadInt32(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadTruncated(t *testing.T) {
	_, err := ReadUint32(util.NewByteReader([]byte{0x80}))
	if err == nil {
		t.Error("expected error reading truncated LEB128 sequence")
	}
}

func TestReadOverlong(t *testing.T) {
	// Six bytes is one more than a u32 ever needs.
	in := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}
	if _, err := ReadUint32(util.NewByteReader(in)); err != ErrOverlong {
		t.Errorf("expected ErrOverlong, got %v", err)
	}
	if _, err := ReadInt32(util.NewByteReader(in)); err != ErrOverlong {
		t.Errorf("expected ErrOverlong, got %v", err)
	}
}

func TestReadFiveByteBoundary(t *testing.T) {
	got, err := ReadUint32(util.NewByteReader([]byte{0xff, 0xff, 0xff, 0xff, 0x0f}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0xffffffff {
		t.Errorf("got %#x, want 0xffffffff", got)
	}
}
