package fragment

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/plckit/plfaddr/errs"
)

// Inflate decompresses a zlib stream at the head of data. When the stream is
// truncated (a bounded probe window, or a sized window cut mid-stream) the
// bytes produced so far are returned together with the wrapped
// errs.ErrMalformedZlibStream, so callers can decide whether a partial result
// is still usable.
func Inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib header: %v: %w", err, errs.ErrMalformedZlibStream)
	}
	defer zr.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return out.Bytes(), fmt.Errorf("zlib inflate: %v: %w", err, errs.ErrMalformedZlibStream)
	}

	return out.Bytes(), nil
}

// InflateWhole decompresses a complete zlib stream; any error discards the
// partial output. Used for opportunistic inline blobs where a truncated
// result is worthless.
func InflateWhole(data []byte) ([]byte, error) {
	out, err := Inflate(data)
	if err != nil {
		return nil, err
	}

	return out, nil
}
