package pool

import "sync"

// FragmentBufferDefaultSize sizes pooled buffers for decompressed fragments;
// a single full segment is 4096 bytes, multi-segment fragments grow past it.
const (
	FragmentBufferDefaultSize  = 8 * 1024
	FragmentBufferMaxThreshold = 512 * 1024
)

// ByteBuffer is a reusable byte accumulator handed out by GetFragmentBuffer.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Reset resets the buffer to be empty, retaining the allocated memory.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// MustWrite appends data to the buffer, growing it if necessary.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

var fragmentBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{B: make([]byte, 0, FragmentBufferDefaultSize)}
	},
}

// GetFragmentBuffer returns an empty pooled buffer.
func GetFragmentBuffer() *ByteBuffer {
	bb := fragmentBufferPool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// PutFragmentBuffer returns a buffer to the pool. Oversized buffers are
// dropped so one huge fragment does not pin memory for the whole run.
func PutFragmentBuffer(bb *ByteBuffer) {
	if cap(bb.B) > FragmentBufferMaxThreshold {
		return
	}
	fragmentBufferPool.Put(bb)
}
