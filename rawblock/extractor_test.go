package rawblock

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/plckit/plfaddr/container"
	"github.com/plckit/plfaddr/format"
	"github.com/plckit/plfaddr/scan"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

func extract(data []byte) Result {
	return NewExtractor(container.New(data), scan.New(0), discardLogger()).Extract()
}

// writeHeaderBlock appends a "<kind>!" header marker with a length-prefixed
// name record; the length prefix counts the name plus itself.
func writeHeaderBlock(b *bytes.Buffer, marker, name string) int {
	off := b.Len()
	b.WriteString(marker)
	b.WriteByte(1)
	b.WriteByte(byte(len(name) + 1))
	b.WriteString(name)

	return off
}

// writeAddressToken appends a size-prefixed %DB token with an empty blob
// length.
func writeAddressToken(b *bytes.Buffer, token string) int {
	b.WriteByte(byte(len(token)))
	off := b.Len()
	b.WriteString(token)
	b.WriteByte(0)
	b.WriteByte(0)

	return off
}

func TestHeaderScan(t *testing.T) {
	t.Run("Marker classification", func(t *testing.T) {
		var b bytes.Buffer
		b.WriteString("pad ")
		off := writeHeaderBlock(&b, "DB!", "MOTOR")

		res := extract(b.Bytes())
		require.Len(t, res.Blocks, 1)
		require.Equal(t, format.KindDB, res.Blocks[0].Kind)
		require.Equal(t, "MOTOR", res.Blocks[0].Name)
		require.Equal(t, off, res.Blocks[0].Offset)
	})

	t.Run("UDT marker", func(t *testing.T) {
		var b bytes.Buffer
		writeHeaderBlock(&b, "UDT!", "MotorType")

		res := extract(b.Bytes())
		require.Len(t, res.Blocks, 1)
		require.Equal(t, format.KindUDT, res.Blocks[0].Kind)
	})

	t.Run("Non-alphanumeric name dropped", func(t *testing.T) {
		var b bytes.Buffer
		writeHeaderBlock(&b, "FB!", "BAD NAME")

		res := extract(b.Bytes())
		require.Empty(t, res.Blocks)
	})
}

func TestNameScan(t *testing.T) {
	t.Run("Plain length prefix", func(t *testing.T) {
		var b bytes.Buffer
		b.WriteString("x")
		b.Write([]byte{0x01, 0x03})
		b.WriteString("DB")
		b.WriteByte(5)
		b.WriteString("MOTOR rest")

		res := extract(b.Bytes())
		require.Len(t, res.Blocks, 1)
		require.Equal(t, format.KindDB, res.Blocks[0].Kind)
		require.Equal(t, "MOTOR", res.Blocks[0].Name)
	})

	t.Run("Sentinel 33 with closing 33", func(t *testing.T) {
		name := strings.Repeat("A", 32) + "!"
		var b bytes.Buffer
		b.Write([]byte{0x01, 0x03})
		b.WriteString("FB")
		b.WriteByte(33)
		b.WriteString(name)

		res := extract(b.Bytes())
		require.Len(t, res.Blocks, 1)
		require.Equal(t, name, res.Blocks[0].Name)
		require.Equal(t, format.KindFB, res.Blocks[0].Kind)
	})

	t.Run("Sentinel 33 with indirection", func(t *testing.T) {
		var b bytes.Buffer
		b.Write([]byte{0x01, 0x03})
		b.WriteString("OB")
		end := b.Len()
		b.WriteByte(33) // name size sentinel (0x21, '!'), no closing 33 follows
		b.WriteByte(2)  // offset
		b.WriteByte(0xAA)
		b.WriteByte(4) // true size at end+1+off
		b.WriteString("PUMP")
		for b.Len() < end+40 {
			b.WriteByte(0)
		}

		// The 0x21 sentinel also completes an "OB!" header marker, so the
		// header scan contributes a second, truncated block.
		res := extract(b.Bytes())
		var named *RawBlock
		for i := range res.Blocks {
			if res.Blocks[i].Name == "PUMP" {
				named = &res.Blocks[i]
			}
		}
		require.NotNil(t, named)
		require.Equal(t, format.KindOB, named.Kind)
	})
}

func TestAddressScan(t *testing.T) {
	t.Run("Plain token", func(t *testing.T) {
		var b bytes.Buffer
		b.WriteString("pad")
		off := writeAddressToken(&b, "%DB7")

		res := extract(b.Bytes())
		require.Len(t, res.Addresses, 1)
		require.Equal(t, "DB7", res.Addresses[0].Token)
		require.Equal(t, uint16(7), res.Addresses[0].RefAddress)
		require.Equal(t, off, res.Addresses[0].Offset)
		require.Empty(t, res.Addresses[0].Name)
	})

	t.Run("Token cleaning", func(t *testing.T) {
		var b bytes.Buffer
		writeAddressToken(&b, "%DB 15")

		res := extract(b.Bytes())
		require.Len(t, res.Addresses, 1)
		require.Equal(t, "DB15", res.Addresses[0].Token)
		require.Equal(t, uint16(15), res.Addresses[0].RefAddress)
	})

	t.Run("Rejections", func(t *testing.T) {
		var b bytes.Buffer
		// Zero size prefix.
		b.WriteByte(0)
		b.WriteString("%DB9")
		b.WriteString(" ")
		// No numeric suffix.
		writeAddressToken(&b, "%DBX")

		res := extract(b.Bytes())
		require.Empty(t, res.Addresses)
	})
}

func TestPlusBlock(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("junk ")
	idx := b.Len()
	b.WriteString("PLUSBLOCK")
	end := b.Len()

	// The data region spans [end, end+dataSize) and includes the size byte
	// itself, so the written payload is dataSize-1 bytes.
	const dataSize = 60
	data := make([]byte, dataSize-1)
	data[10] = 5
	copy(data[11:], "%DB12")
	binary.LittleEndian.PutUint16(data[idx+53-end-1:], 900)
	b.WriteByte(dataSize)
	b.Write(data)

	// Name chain at end+dataSize: off1, then off2, then the length-prefixed
	// name; the off2 byte doubles as the non-zero follow-on flag.
	b.WriteByte(1)
	b.WriteByte(2)
	b.WriteByte(0xAA)
	b.WriteByte(6)
	b.WriteString("MYDB01")

	res := extract(b.Bytes())
	require.Len(t, res.Addresses, 1, "the plain token scan duplicate must collapse onto the named record")

	rec := res.Addresses[0]
	require.Equal(t, "MYDB01", rec.Name)
	require.Equal(t, "DB12", rec.Token)
	require.Equal(t, uint16(900), rec.RefAddress)
	require.Equal(t, end+12, rec.Offset)
}

func TestPairing(t *testing.T) {
	var b bytes.Buffer
	// An address before the block must not be chosen.
	writeAddressToken(&b, "%DB3")
	b.WriteString(strings.Repeat(" ", 16))
	blockOff := writeHeaderBlock(&b, "DB!", "MOTOR")
	b.WriteString(strings.Repeat(" ", 16))
	nearOff := writeAddressToken(&b, "%DB7")
	b.WriteString(strings.Repeat(" ", 16))
	writeAddressToken(&b, "%DB9")

	res := extract(b.Bytes())
	require.Len(t, res.Blocks, 1)
	require.NotNil(t, res.Blocks[0].Address)
	require.Equal(t, uint16(7), res.Blocks[0].Address.RefAddress)
	require.Equal(t, nearOff, res.Blocks[0].Address.Offset)

	// Nearest-pairing invariant: no other record sits closer after the block.
	for _, a := range res.Addresses {
		if a.Offset > blockOff {
			require.GreaterOrEqual(t, a.Offset-blockOff, nearOff-blockOff)
		}
	}

	// Addresses are sorted by reference address.
	for i := 1; i < len(res.Addresses); i++ {
		require.LessOrEqual(t, res.Addresses[i-1].RefAddress, res.Addresses[i].RefAddress)
	}
}
