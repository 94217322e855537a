// Package errs defines the sentinel errors shared across the parsing passes.
//
// Every per-record failure inside a pass wraps one of these sentinels with
// byte-offset context via fmt.Errorf("...: %w", ...), so callers can test the
// failure kind with errors.Is while logs keep the diagnostic detail.
package errs

import "errors"

var (
	// ErrMalformedZlibStream indicates a candidate zlib stream that failed to
	// decompress (bad header, truncated deflate data, or checksum mismatch).
	ErrMalformedZlibStream = errors.New("malformed zlib stream")

	// ErrMalformedXMLFragment indicates bytes that were expected to parse as an
	// XML fragment but did not.
	ErrMalformedXMLFragment = errors.New("malformed xml fragment")

	// ErrTokenizationMismatch indicates a length prefix or offset chain that
	// points outside the container buffer.
	ErrTokenizationMismatch = errors.New("tokenization mismatch")

	// ErrUnparseableAddress indicates a %DB token whose numeric suffix could
	// not be parsed.
	ErrUnparseableAddress = errors.New("unparseable address token")

	// ErrUnclassifiedBlock indicates a block whose kind could not be inferred
	// from any occurrence prefix or raw-block name.
	ErrUnclassifiedBlock = errors.New("unclassified block")

	// ErrUnmatchedElement indicates an element with no XML, raw-block, or
	// reference-block link.
	ErrUnmatchedElement = errors.New("unmatched element")

	// ErrFormatViolation indicates a reference-block properties record whose
	// OD/TD/T value is not of the three-component BlockType:BlockID:Name form.
	ErrFormatViolation = errors.New("format violation")

	// ErrRegexTimeout indicates a bounded scan that exceeded its deadline.
	ErrRegexTimeout = errors.New("regex scan timeout")

	// ErrHashCollision indicates two distinct identifiers hashing to the same
	// 64-bit dedup key.
	ErrHashCollision = errors.New("hash collision detected")
)
