// Package element locates the BIVE:/BI: element headers and cross-links each
// element to its raw block, reference block, and XML tree.
//
// A root element header has the shape BIVE:<name>/<guid>; a member header
// has BI:<scope>:<name>/<guid>. Every occurrence of the element's name in the
// container is classified by the two ASCII bytes preceding it, yielding one
// candidate element per occurrence; dedup keeps the latest header per ID.
package element

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/container"
	"github.com/plckit/plfaddr/errs"
	"github.com/plckit/plfaddr/format"
	"github.com/plckit/plfaddr/internal/collision"
	"github.com/plckit/plfaddr/rawblock"
	"github.com/plckit/plfaddr/scan"
	"github.com/plckit/plfaddr/xmlblock"
)

var (
	rootHeaderRe   = regexp.MustCompile(`BIVE:(.*?)/`)
	memberHeaderRe = regexp.MustCompile(`BI:(.*?)/`)

	rootDataRe   = regexp.MustCompile(`([A-Za-z0-9]+):.*?/([A-Za-z0-9\-]{36})`)
	memberDataRe = regexp.MustCompile(`([A-Za-z0-9]+):(.*?)/([A-Za-z0-9\-]{36})`)
)

// underscoreSizeSentinel is the root-header size byte value that signals the
// real size sits one byte earlier.
const underscoreSizeSentinel = 95

// droppedMemberScope is the member scope whose elements carry no block data.
const droppedMemberScope = "Values"

// Block is one element with its resolved links.
type Block struct {
	Kind format.ElementKind
	// ID is the element identity: the GUID for roots, scope:GUID for members.
	ID   string
	Name string
	// BlockKind is the category inferred from an occurrence prefix or a raw
	// block.
	BlockKind format.BlockKind
	// BlockOffset is the byte offset of the classified name occurrence.
	BlockOffset int
	// DataOffset is the byte offset of the element header.
	DataOffset int
	// Address is the resolved reference address, 0 until linked.
	Address int32
	// Raw is the linked raw block, nil when none matches.
	Raw *rawblock.RawBlock
	// ReferenceName is the linked reference block's name, falling back to the
	// element's own name when no reference block matches.
	ReferenceName string
	// XML is the linked (or borrowed) XML tree.
	XML *xmlblock.Block
}

// Extractor implements the element-header pass.
type Extractor struct {
	buf     *container.Buffer
	scanner *scan.Scanner
	log     logrus.FieldLogger
}

// NewExtractor creates an Extractor over buf.
func NewExtractor(buf *container.Buffer, scanner *scan.Scanner, log logrus.FieldLogger) *Extractor {
	return &Extractor{buf: buf, scanner: scanner, log: log}
}

// Extract scans both header families, classifies every name occurrence, and
// deduplicates per element ID keeping the latest header.
func (e *Extractor) Extract(raws []rawblock.RawBlock) []*Block {
	var els []*Block
	els = append(els, e.scanRoots(raws)...)
	els = append(els, e.scanMembers(raws)...)

	return e.dedupe(els)
}

func (e *Extractor) scanRoots(raws []rawblock.RawBlock) []*Block {
	matches, err := e.scanner.FindAllSubmatchIndex(rootHeaderRe, e.buf.Text())
	if err != nil {
		e.log.WithField("offset", 0).Warnf("root header scan failed: %v", err)
		return nil
	}

	var out []*Block
	for _, m := range matches {
		size, err := e.buf.Byte(m[0] - 1)
		if err != nil {
			continue
		}
		if size == underscoreSizeSentinel {
			if size, err = e.buf.Byte(m[0] - 2); err != nil {
				continue
			}
		}

		data, err := e.buf.ASCII(m[0], min(m[0]+int(size), e.buf.Len()))
		if err != nil {
			e.log.WithField("offset", m[0]).Warnf("root block data: %v", err)
			continue
		}
		dm := rootDataRe.FindStringSubmatch(data)
		if dm == nil {
			continue
		}

		name := e.buf.Text()[m[2]:m[3]]
		out = append(out, e.classify(format.ElementRoot, dm[2], name, m[0], raws)...)
	}

	return out
}

func (e *Extractor) scanMembers(raws []rawblock.RawBlock) []*Block {
	matches, err := e.scanner.FindAllSubmatchIndex(memberHeaderRe, e.buf.Text())
	if err != nil {
		e.log.WithField("offset", 0).Warnf("member header scan failed: %v", err)
		return nil
	}

	var out []*Block
	for _, m := range matches {
		// The 16-bit size read straddles the byte before the match and the
		// first byte of the BI: prefix; the window is clamped so the oversized
		// value degrades to rest-of-buffer.
		size, err := e.buf.Uint16(m[0] - 1)
		if err != nil {
			continue
		}

		data, err := e.buf.ASCII(m[0], min(m[0]+int(size), e.buf.Len()))
		if err != nil {
			e.log.WithField("offset", m[0]).Warnf("member block data: %v", err)
			continue
		}
		data = strings.TrimPrefix(data, "BI:")
		dm := memberDataRe.FindStringSubmatch(data)
		if dm == nil {
			continue
		}

		scope, name, guid := dm[1], dm[2], dm[3]
		if scope == droppedMemberScope {
			continue
		}

		out = append(out, e.classify(format.ElementMember, scope+":"+guid, name, m[0], raws)...)
	}

	return out
}

// classify emits one element per name occurrence whose two-byte prefix maps
// to a block kind, falling back to the raw-block name search, and finally to
// a single UNDEFINED element at offset zero.
func (e *Extractor) classify(kind format.ElementKind, id, name string, dataOffset int, raws []rawblock.RawBlock) []*Block {
	if name == "" {
		return nil
	}

	var out []*Block
	text := e.buf.Text()
	for j := 0; ; {
		rel := strings.Index(text[j:], name)
		if rel < 0 {
			break
		}
		j += rel

		prefix, err := e.buf.ASCII(j-3, j-1)
		if err == nil {
			if bk := format.KindFromPrefix(prefix); bk != format.KindUndefined {
				out = append(out, &Block{
					Kind:          kind,
					ID:            id,
					Name:          name,
					BlockKind:     bk,
					BlockOffset:   j,
					DataOffset:    dataOffset,
					ReferenceName: name,
				})
			}
		}
		j++
	}
	if len(out) > 0 {
		return out
	}

	if bk, pos, ok := classifyFromRaws(e.buf, name, raws); ok {
		return []*Block{{
			Kind:          kind,
			ID:            id,
			Name:          name,
			BlockKind:     bk,
			BlockOffset:   pos,
			DataOffset:    dataOffset,
			ReferenceName: name,
		}}
	}

	e.log.WithField("offset", dataOffset).Warnf("element %q: %v", name, errs.ErrUnclassifiedBlock)

	return []*Block{{
		Kind:          kind,
		ID:            id,
		Name:          name,
		BlockKind:     format.KindUndefined,
		BlockOffset:   0,
		DataOffset:    dataOffset,
		ReferenceName: name,
	}}
}

// classifyFromRaws finds a raw block whose name contains the element name at
// a position whose preceding byte is the length-prefix len(name)+1.
func classifyFromRaws(buf *container.Buffer, name string, raws []rawblock.RawBlock) (format.BlockKind, int, bool) {
	for i := range raws {
		idx := strings.Index(raws[i].Name, name)
		if idx < 0 {
			continue
		}
		pos := raws[i].NameOffset + idx
		prev, err := buf.Byte(pos - 1)
		if err != nil || int(prev) != len(name)+1 {
			continue
		}

		return raws[i].Kind, pos, true
	}

	return format.KindUndefined, 0, false
}

// dedupe sorts by header offset and keeps the latest element per ID.
func (e *Extractor) dedupe(els []*Block) []*Block {
	sort.SliceStable(els, func(i, j int) bool { return els[i].DataOffset < els[j].DataOffset })

	tracker := collision.NewTracker()
	byID := make(map[uint64]*Block)
	var spill []*Block
	var order []uint64

	for _, el := range els {
		key, err := tracker.Key(el.ID)
		if errors.Is(err, errs.ErrHashCollision) {
			e.log.WithField("offset", el.DataOffset).Warnf("element id %q collides on dedup key %#x; keeping both", el.ID, key)
			spill = append(spill, el)
			continue
		}
		if _, ok := byID[key]; !ok {
			order = append(order, key)
		}
		byID[key] = el
	}

	out := make([]*Block, 0, len(order)+len(spill))
	for _, key := range order {
		out = append(out, byID[key])
	}
	out = append(out, spill...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DataOffset < out[j].DataOffset })

	return out
}
