package xmlblock

import (
	"errors"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/container"
	"github.com/plckit/plfaddr/errs"
	"github.com/plckit/plfaddr/format"
	"github.com/plckit/plfaddr/fragment"
	"github.com/plckit/plfaddr/internal/collision"
	"github.com/plckit/plfaddr/internal/xmldom"
	"github.com/plckit/plfaddr/scan"
)

var (
	rawRootRe   = regexp.MustCompile(`(?s)<Root(\s[^>]*)?>.*?</Root>`)
	rawMemberRe = regexp.MustCompile(`(?s)<Member(\s[^>]*)?>.*?</Member>`)

	rootHdrRe   = regexp.MustCompile(`BIVE:(.*?)/([A-Za-z0-9\-]{36})`)
	memberHdrRe = regexp.MustCompile(`BI:([A-Za-z0-9]+):(.*?)/([A-Za-z0-9\-]{36})`)
)

// Header-recovery chain constants: distance from the recovery anchor back to
// the length-prefixed header record, tried in order, gated by the encrypted
// sentinel byte 0xFF.
const (
	rootChainFirst    = 127
	rootChainFallback = 214
	memberChainFirst  = 119

	encryptedSentinel = 0xFF
)

// Decoder implements the XML-decoding pass.
type Decoder struct {
	buf     *container.Buffer
	scanner *scan.Scanner
	log     logrus.FieldLogger
}

// NewDecoder creates a Decoder over buf.
func NewDecoder(buf *container.Buffer, scanner *scan.Scanner, log logrus.FieldLogger) *Decoder {
	return &Decoder{buf: buf, scanner: scanner, log: log}
}

// Decode collects every Root and Member tree, raw and decompressed, recovers
// each tree's header, and deduplicates per element ID keeping the
// highest-offset occurrence.
func (d *Decoder) Decode(frags []fragment.Fragment) []*Block {
	var blocks []*Block
	blocks = append(blocks, d.scanRaw(rawRootRe, format.ElementRoot)...)
	blocks = append(blocks, d.scanRaw(rawMemberRe, format.ElementMember)...)
	blocks = append(blocks, d.fromFragments(frags)...)

	return d.dedupe(blocks)
}

func (d *Decoder) scanRaw(re *regexp.Regexp, kind format.ElementKind) []*Block {
	matches, err := d.scanner.FindAllIndex(re, d.buf.Text())
	if err != nil {
		d.log.WithField("offset", 0).Warnf("raw %s scan failed: %v", kind, err)
		return nil
	}

	var out []*Block
	for _, m := range matches {
		doc, err := xmldom.Parse([]byte(d.buf.Text()[m[0]:m[1]]))
		if err != nil {
			d.log.WithField("offset", m[0]).Warnf("raw %s parse: %v", kind, err)
			continue
		}
		out = append(out, d.build(doc, kind, m[0], m[1]-m[0], false))
	}

	return out
}

func (d *Decoder) fromFragments(frags []fragment.Fragment) []*Block {
	var out []*Block
	for _, f := range frags {
		var kind format.ElementKind
		switch f.RootLocal {
		case "Root":
			kind = format.ElementRoot
		case "Member":
			kind = format.ElementMember
		default:
			continue
		}
		out = append(out, d.build(f.Doc, kind, f.Offset, f.Size, true))
	}

	return out
}

func (d *Decoder) build(doc *xmldom.Node, kind format.ElementKind, offset, size int, compressed bool) *Block {
	b := &Block{
		Kind:       kind,
		Offset:     offset,
		Size:       size,
		Compressed: compressed,
	}

	hdr := d.recoverHeader(kind, offset, size)
	if kind == format.ElementRoot {
		b.Root = mapRoot(doc)
		b.Root.Header = hdr
	} else {
		b.Member = mapMember(doc)
		b.Member.Header = hdr
	}

	return b
}

// recoverHeader locates the block-data string that belongs to the XML tree
// and parses the element identity out of it. The primary read anchors at the end of the
// tree's byte range, where a 16-bit length prefixes the adjacent block data;
// misses fall back to the fixed indirection chains.
func (d *Decoder) recoverHeader(kind format.ElementKind, offset, size int) Header {
	anchor := offset + size

	if hlen, err := d.buf.Uint16(anchor); err == nil && hlen != 0 {
		if data, err := d.buf.ASCII(anchor+2, min(anchor+2+int(hlen), d.buf.Len())); err == nil {
			if h, ok := matchHeader(kind, data); ok {
				return h
			}
		}
	}

	if kind == format.ElementRoot {
		for _, initial := range []int{rootChainFirst, rootChainFallback} {
			if h, ok := d.chainRoot(anchor, initial); ok {
				return h
			}
		}
	} else if h, ok := d.chainMember(anchor, memberChainFirst); ok {
		return h
	}

	d.log.WithField("offset", offset).Warnf("%s header recovery missed", kind)

	return Header{}
}

// chainRoot follows the two-step length-prefix indirection behind a root
// tree, gated by the encrypted sentinel.
func (d *Decoder) chainRoot(anchor, initial int) (Header, bool) {
	base := anchor - initial
	off1, err := d.buf.Byte(base)
	if err != nil {
		return Header{}, false
	}
	off2, err := d.buf.Byte(base + int(off1))
	if err != nil {
		return Header{}, false
	}
	sentinel, err := d.buf.Byte(base + int(off1) + int(off2))
	if err != nil || sentinel != encryptedSentinel {
		return Header{}, false
	}

	data, err := d.buf.ASCII(base, anchor)
	if err != nil {
		return Header{}, false
	}

	return matchHeader(format.ElementRoot, data)
}

// chainMember follows the single-step indirection behind a member tree.
func (d *Decoder) chainMember(anchor, initial int) (Header, bool) {
	base := anchor - initial
	off, err := d.buf.Byte(base)
	if err != nil {
		return Header{}, false
	}
	sentinel, err := d.buf.Byte(base + int(off))
	if err != nil || sentinel != encryptedSentinel {
		return Header{}, false
	}

	data, err := d.buf.ASCII(base, anchor)
	if err != nil {
		return Header{}, false
	}

	return matchHeader(format.ElementMember, data)
}

func matchHeader(kind format.ElementKind, data string) (Header, bool) {
	if kind == format.ElementRoot {
		m := rootHdrRe.FindStringSubmatch(data)
		if m == nil {
			return Header{}, false
		}

		return Header{ID: m[2], Name: m[1]}, true
	}

	m := memberHdrRe.FindStringSubmatch(data)
	if m == nil {
		return Header{}, false
	}

	return Header{ID: m[1] + ":" + m[3], Name: m[2]}, true
}

// dedupe keeps, per element ID, the block with the greatest byte offset.
// Blocks with no recovered ID cannot alias anything and pass through.
func (d *Decoder) dedupe(blocks []*Block) []*Block {
	tracker := collision.NewTracker()
	byID := make(map[uint64]*Block)
	var anonymous []*Block

	for _, b := range blocks {
		id := b.ElementID()
		if id == "" {
			anonymous = append(anonymous, b)
			continue
		}

		key, err := tracker.Key(id)
		if errors.Is(err, errs.ErrHashCollision) {
			d.log.WithField("offset", b.Offset).Warnf("element id %q collides on dedup key %#x; keeping both", id, key)
			anonymous = append(anonymous, b)
			continue
		}
		if prev, ok := byID[key]; ok && prev.Offset >= b.Offset {
			continue
		}
		byID[key] = b
	}

	out := make([]*Block, 0, len(byID)+len(anonymous))
	for _, b := range byID {
		out = append(out, b)
	}
	out = append(out, anonymous...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })

	return out
}
