package container

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plckit/plfaddr/errs"
)

func TestBufferReads(t *testing.T) {
	buf := New([]byte{0x41, 0x42, 0x10, 0x20, 0xFF})

	t.Run("Byte", func(t *testing.T) {
		b, err := buf.Byte(0)
		require.NoError(t, err)
		require.Equal(t, byte(0x41), b)

		_, err = buf.Byte(5)
		require.ErrorIs(t, err, errs.ErrTokenizationMismatch)
		_, err = buf.Byte(-1)
		require.ErrorIs(t, err, errs.ErrTokenizationMismatch)
	})

	t.Run("Uint16 little-endian", func(t *testing.T) {
		v, err := buf.Uint16(2)
		require.NoError(t, err)
		require.Equal(t, uint16(0x2010), v)

		_, err = buf.Uint16(4)
		require.ErrorIs(t, err, errs.ErrTokenizationMismatch)
	})

	t.Run("Slice and clamp", func(t *testing.T) {
		s, err := buf.Slice(1, 3)
		require.NoError(t, err)
		require.Equal(t, []byte{0x42, 0x10}, s)

		_, err = buf.Slice(1, 9)
		require.ErrorIs(t, err, errs.ErrTokenizationMismatch)

		s, err = buf.SliceClamped(3, 9)
		require.NoError(t, err)
		require.Equal(t, []byte{0x20, 0xFF}, s)
	})
}

func TestBufferTextView(t *testing.T) {
	// High bytes pass through verbatim; the text view is byte-for-byte the
	// raw content.
	data := []byte{'D', 'B', '!', 0x01, 0xFE, 0x80}
	buf := New(data)

	require.Equal(t, len(data), len(buf.Text()))
	for i := range data {
		require.Equal(t, data[i], buf.Text()[i])
	}

	s, err := buf.ASCII(0, 3)
	require.NoError(t, err)
	require.Equal(t, "DB!", s)
}
