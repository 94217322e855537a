// Package fragment locates and decompresses the zlib-compressed XML
// fragments embedded in a PLF container.
//
// Fragments are found by scanning for the 0x78 0x5E zlib header ("x^" in the
// ASCII view), probing each candidate with a bounded decompression, and then
// decompressing the exact window announced by the 16-bit length prefix that
// precedes the marker. Fragments whose decompressed form does not start with
// a BOM and one of the interesting root tags are skipped.
package fragment

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/container"
	"github.com/plckit/plfaddr/internal/pool"
	"github.com/plckit/plfaddr/internal/xmldom"
	"github.com/plckit/plfaddr/scan"
)

// DefaultProbeWindow bounds the probing decompression of a marker candidate.
const DefaultProbeWindow = 250

// segmentSize is the decompressed size that marks a fragment segment as
// partial: a segment of exactly this size continues in a later stream.
const segmentSize = 4096

var (
	markerRe = regexp.MustCompile(`x\^`)
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// Fragment is one decompressed XML fragment.
type Fragment struct {
	// Doc is the parsed XML tree.
	Doc *xmldom.Node
	// RootLocal is the root element's local name (Root, Member, IdentXmlPart).
	RootLocal string
	// Offset is the byte offset of the zlib marker in the container.
	Offset int
	// Size is the compressed length announced by the 16-bit prefix before the
	// marker.
	Size int
}

// End returns the byte offset just past the fragment's compressed stream.
func (f *Fragment) End() int {
	return f.Offset + f.Size
}

// Extractor implements the compressed-fragment pass.
type Extractor struct {
	buf     *container.Buffer
	scanner *scan.Scanner
	log     logrus.FieldLogger
	probe   int
}

// NewExtractor creates an Extractor over buf. probeWindow <= 0 falls back to
// DefaultProbeWindow.
func NewExtractor(buf *container.Buffer, scanner *scan.Scanner, log logrus.FieldLogger, probeWindow int) *Extractor {
	if probeWindow <= 0 {
		probeWindow = DefaultProbeWindow
	}

	return &Extractor{buf: buf, scanner: scanner, log: log, probe: probeWindow}
}

// Extract walks the container and returns every interesting decompressed
// fragment in offset order. Per-fragment failures are logged and skipped.
func (e *Extractor) Extract() []Fragment {
	matches, err := e.scanner.FindAllIndex(markerRe, e.buf.Text())
	if err != nil {
		e.log.WithField("offset", 0).Warnf("fragment marker scan failed: %v", err)
		return nil
	}

	var out []Fragment
	for _, m := range matches {
		frag, ok := e.extractAt(m[0])
		if ok {
			out = append(out, frag)
		}
	}

	return out
}

// extractAt tries to lift one fragment anchored at the marker offset p.
func (e *Extractor) extractAt(p int) (Fragment, bool) {
	probeEnd := p + e.probe
	if probeEnd > e.buf.Len() {
		probeEnd = e.buf.Len()
	}
	window, err := e.buf.Slice(p, probeEnd)
	if err != nil {
		return Fragment{}, false
	}

	// A truncated probe still yields the head of the stream, which is all the
	// tag sniff needs.
	probed, err := Inflate(window)
	if len(probed) == 0 {
		return Fragment{}, false
	}

	tag, ok := sniffTag(probed)
	if !ok {
		return Fragment{}, false
	}
	if tag == "IdentXmlPart" && !bytes.Contains(probed, []byte("DBBlock")) {
		return Fragment{}, false
	}

	blockSize, err := e.buf.Uint16(p - 2)
	if err != nil || blockSize == 0 {
		return Fragment{}, false
	}

	data, err := e.buf.SliceClamped(p, p+int(blockSize))
	if err != nil {
		e.log.WithField("offset", p).Warnf("fragment window: %v", err)
		return Fragment{}, false
	}

	decomp, infErr := Inflate(data)
	if len(decomp) == 0 {
		e.log.WithField("offset", p).Warnf("fragment inflate: %v", infErr)
		return Fragment{}, false
	}

	if len(decomp) == segmentSize {
		decomp = e.continueSegments(p, int(blockSize), decomp)
	}

	doc, parseErr := xmldom.Parse(stripZeros(decomp))
	if parseErr != nil {
		// One retry with an unbounded window; sized windows occasionally cut a
		// stream short of its terminator.
		doc = e.retryUnbounded(p)
		if doc == nil {
			e.log.WithField("offset", p).Warnf("fragment xml parse: %v", parseErr)
			return Fragment{}, false
		}
	}

	return Fragment{
		Doc:       doc,
		RootLocal: doc.Local(),
		Offset:    p,
		Size:      int(blockSize),
	}, true
}

// continueSegments concatenates follow-on segments of a partial fragment. A
// segment that decompresses to exactly 4096 bytes continues in the next zlib
// stream; the final segment is the first one shorter than that.
func (e *Extractor) continueSegments(p, blockSize int, first []byte) []byte {
	acc := pool.GetFragmentBuffer()
	defer pool.PutFragmentBuffer(acc)
	acc.MustWrite(first)

	text := e.buf.Text()
	next := p + 1
	for {
		rel := indexMarker(text[next:])
		if rel < 0 {
			break
		}
		q := next + rel
		next = q + 1

		// Each embedded segment carries its own length prefix two bytes before
		// the marker; a missing or zero prefix falls back to the initial size.
		segSize := blockSize
		if v, err := e.buf.Uint16(q - 2); err == nil && v != 0 {
			segSize = int(v)
		}

		window, err := e.buf.SliceClamped(q, q+segSize)
		if err != nil {
			break
		}
		seg, infErr := Inflate(window)
		if len(seg) == 0 {
			e.log.WithField("offset", q).Debugf("partial segment inflate: %v", infErr)
			continue
		}

		acc.MustWrite(seg)
		if len(seg) < segmentSize {
			break
		}
	}

	out := make([]byte, acc.Len())
	copy(out, acc.Bytes())

	return out
}

func (e *Extractor) retryUnbounded(p int) *xmldom.Node {
	tail, err := e.buf.Tail(p)
	if err != nil {
		return nil
	}

	decomp, _ := Inflate(tail)
	if len(decomp) == 0 {
		return nil
	}

	doc, err := xmldom.Parse(stripZeros(decomp))
	if err != nil {
		return nil
	}

	return doc
}

// sniffTag checks the BOM-plus-tag shape of a probed stream head and returns
// the tag when it is one of the interesting roots.
func sniffTag(probed []byte) (string, bool) {
	if !bytes.HasPrefix(probed, utf8BOM) {
		return "", false
	}
	rest := probed[len(utf8BOM):]
	if len(rest) < 2 || rest[0] != '<' {
		return "", false
	}

	i := 1
	for i < len(rest) && isTagByte(rest[i]) {
		i++
	}
	tag := string(rest[1:i])

	switch tag {
	case "Root", "Member", "IdentXmlPart":
		return tag, true
	default:
		return "", false
	}
}

func isTagByte(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

func indexMarker(s string) int {
	return strings.Index(s, "x^")
}

// stripZeros drops NUL bytes; raw container padding leaks into decompressed
// windows that were cut long.
func stripZeros(data []byte) []byte {
	if bytes.IndexByte(data, 0x00) < 0 {
		return data
	}

	return bytes.ReplaceAll(data, []byte{0x00}, nil)
}
