// Package container holds the immutable PLF byte buffer shared by all
// parsing passes.
//
// The buffer exposes two synchronized views of the same bytes: the raw
// []byte slice for offset arithmetic, and an ASCII string view for regex
// scanning. The string view maps every byte verbatim; no character-set
// conversion is applied, high bytes pass through as-is.
//
// All reads are bounds-checked. A length prefix or offset chain that points
// outside the buffer surfaces as errs.ErrTokenizationMismatch so the calling
// pass can log it and move on to its next record.
package container

import (
	"fmt"
	"os"

	"github.com/plckit/plfaddr/endian"
	"github.com/plckit/plfaddr/errs"
)

// Buffer is the immutable container content. It is created once by the
// driver and shared read-only by every pass; nothing mutates it after New.
type Buffer struct {
	data   []byte
	text   string
	engine endian.EndianEngine
}

// New wraps data in a Buffer. The caller must not modify data afterwards.
func New(data []byte) *Buffer {
	return &Buffer{
		data:   data,
		text:   string(data),
		engine: endian.GetLittleEndianEngine(),
	}
}

// FromFile slurps the file at path into a Buffer.
func FromFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container %s: %w", path, err)
	}

	return New(data), nil
}

// Len returns the buffer size in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the underlying byte slice. Callers must treat it as
// read-only.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Text returns the ASCII view of the buffer.
func (b *Buffer) Text() string {
	return b.text
}

// Byte reads the single byte at offset i.
func (b *Buffer) Byte(i int) (byte, error) {
	if i < 0 || i >= len(b.data) {
		return 0, fmt.Errorf("byte read at %d of %d: %w", i, len(b.data), errs.ErrTokenizationMismatch)
	}

	return b.data[i], nil
}

// Uint16 reads the little-endian 16-bit value at offset i.
func (b *Buffer) Uint16(i int) (uint16, error) {
	if i < 0 || i+2 > len(b.data) {
		return 0, fmt.Errorf("uint16 read at %d of %d: %w", i, len(b.data), errs.ErrTokenizationMismatch)
	}

	return b.engine.Uint16(b.data[i : i+2]), nil
}

// Slice returns data[lo:hi].
func (b *Buffer) Slice(lo, hi int) ([]byte, error) {
	if lo < 0 || hi < lo || hi > len(b.data) {
		return nil, fmt.Errorf("slice [%d:%d] of %d: %w", lo, hi, len(b.data), errs.ErrTokenizationMismatch)
	}

	return b.data[lo:hi], nil
}

// SliceClamped returns data[lo:hi] with hi clamped to the buffer end. Used
// where an oversized length prefix should degrade to "rest of buffer" rather
// than fail the record.
func (b *Buffer) SliceClamped(lo, hi int) ([]byte, error) {
	if hi > len(b.data) {
		hi = len(b.data)
	}

	return b.Slice(lo, hi)
}

// ASCII returns the text view of data[lo:hi].
func (b *Buffer) ASCII(lo, hi int) (string, error) {
	if lo < 0 || hi < lo || hi > len(b.text) {
		return "", fmt.Errorf("ascii [%d:%d] of %d: %w", lo, hi, len(b.text), errs.ErrTokenizationMismatch)
	}

	return b.text[lo:hi], nil
}

// Tail returns data[lo:].
func (b *Buffer) Tail(lo int) ([]byte, error) {
	return b.Slice(lo, len(b.data))
}
