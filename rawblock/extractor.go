// Package rawblock extracts block headers, block names and %DB address
// records directly from the container bytes.
//
// Three record families matter here: block-header markers ("DB!", "FB!", ...,
// and PLUSBLOCK), block-name markers (0x01 0x03 followed by a category
// label), and address tokens ("%DB<n>" plus the composite PLUSBLOCK record).
// Every length field in these records is a single-byte or 16-bit
// little-endian prefix; a prefix pointing outside the buffer fails only the
// record it belongs to.
package rawblock

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/container"
	"github.com/plckit/plfaddr/errs"
	"github.com/plckit/plfaddr/format"
	"github.com/plckit/plfaddr/fragment"
	"github.com/plckit/plfaddr/scan"
)

var (
	headerRe  = regexp.MustCompile(`(UDT|FB|DB|OB|FC)!|PLUSBLOCK`)
	nameRe    = regexp.MustCompile(`\x01\x03(DB|OB|FC|FB)`)
	dbTokenRe = regexp.MustCompile(`^DB\d+`)
	digitsRe  = regexp.MustCompile(`\d+`)
)

// plusAddressOffset is where the 16-bit reference address sits relative to
// the start of a PLUSBLOCK marker.
const plusAddressOffset = 53

// blobSearchWindow bounds the marker search for a PLUSBLOCK follow-on
// compressed block.
const blobSearchWindow = 64 * 1024

// AddressRecord ties an address token to its 16-bit reference address.
type AddressRecord struct {
	// Name is the human-readable block name, when the record carries one.
	// Plain %DB tokens have no name; PLUSBLOCK records usually do.
	Name string
	// Token is the cleaned address token, e.g. "DB12".
	Token string
	// RefAddress is the 16-bit reference address.
	RefAddress uint16
	// Offset is the byte offset of the %DB token in the container.
	Offset int
	// Blob holds the opportunistically decompressed inline payload, nil when
	// absent or undecodable.
	Blob []byte
}

// RawBlock is a block located by a header or name marker.
type RawBlock struct {
	Kind format.BlockKind
	Name string
	// Offset is the byte offset of the marker match.
	Offset int
	// NameOffset is the byte offset where the name bytes start.
	NameOffset int
	// Address is the nearest following address record for DB blocks, nil when
	// unpaired.
	Address *AddressRecord
}

// Result is the output of the raw-block pass.
type Result struct {
	Blocks    []RawBlock
	Addresses []*AddressRecord
}

// Extractor implements the raw-block pass.
type Extractor struct {
	buf     *container.Buffer
	scanner *scan.Scanner
	log     logrus.FieldLogger
}

// NewExtractor creates an Extractor over buf.
func NewExtractor(buf *container.Buffer, scanner *scan.Scanner, log logrus.FieldLogger) *Extractor {
	return &Extractor{buf: buf, scanner: scanner, log: log}
}

// Extract runs the header, name, address and PLUSBLOCK scans, pairs each DB
// block with its nearest following address record, and returns both lists.
func (e *Extractor) Extract() Result {
	var res Result

	res.Blocks = append(res.Blocks, e.scanHeaders()...)
	res.Blocks = append(res.Blocks, e.scanNames()...)
	res.Addresses = append(res.Addresses, e.scanAddressTokens()...)
	res.Addresses = append(res.Addresses, e.scanPlusBlocks()...)

	pairAddresses(res.Blocks, res.Addresses)
	res.Addresses = postProcess(res.Addresses)

	return res
}

// scanHeaders finds "<kind>!" and PLUSBLOCK header markers and decodes the
// length-prefixed block name that follows each.
func (e *Extractor) scanHeaders() []RawBlock {
	matches, err := e.scanner.FindAllSubmatchIndex(headerRe, e.buf.Text())
	if err != nil {
		e.log.WithField("offset", 0).Warnf("header scan failed: %v", err)
		return nil
	}

	var out []RawBlock
	for _, m := range matches {
		end := m[1]

		// Two chained single-byte prefixes: an offset to the name record, then
		// the name length itself.
		o, err := e.buf.Byte(end)
		if err != nil {
			e.log.WithField("offset", m[0]).Warnf("header name offset: %v", err)
			continue
		}
		s, err := e.buf.Byte(end + int(o))
		if err != nil {
			e.log.WithField("offset", m[0]).Warnf("header name size: %v", err)
			continue
		}
		if s == 0 {
			continue
		}
		// The length prefix counts the name plus itself; the raw-name
		// classification fallback in the element pass relies on that.
		nameStart := end + int(o) + 1
		name, err := e.buf.ASCII(nameStart, nameStart+int(s)-1)
		if err != nil {
			e.log.WithField("offset", m[0]).Warnf("header name read: %v", err)
			continue
		}
		if name == "" || !isAlphanumeric(name) {
			continue
		}

		kind := format.KindUndefined
		if m[2] >= 0 {
			kind = format.KindFromMarker(e.buf.Text()[m[2]:m[3]])
		}
		if kind == format.KindUndefined {
			kind = format.ClassifyName(name)
		}

		out = append(out, RawBlock{
			Kind:       kind,
			Name:       name,
			Offset:     m[0],
			NameOffset: nameStart,
		})
	}

	return out
}

// scanNames finds 0x01 0x03 block-name markers. The name length encoding has
// three shapes, keyed off the sentinel size 33.
func (e *Extractor) scanNames() []RawBlock {
	matches, err := e.scanner.FindAllSubmatchIndex(nameRe, e.buf.Text())
	if err != nil {
		e.log.WithField("offset", 0).Warnf("name scan failed: %v", err)
		return nil
	}

	var out []RawBlock
	for _, m := range matches {
		end := m[1]
		label := e.buf.Text()[m[2]:m[3]]

		nameSize, err := e.buf.Byte(end)
		if err != nil {
			e.log.WithField("offset", m[0]).Warnf("name size read: %v", err)
			continue
		}

		nameStart, nameLen := end+1, int(nameSize)
		if nameSize == 33 {
			if sentinel, err := e.buf.Byte(end + 33); err == nil && sentinel == 33 {
				nameLen = 33
			} else {
				// Indirect shape: an offset byte, then the true length.
				off, err := e.buf.Byte(end + 1)
				if err != nil {
					e.log.WithField("offset", m[0]).Warnf("name indirection: %v", err)
					continue
				}
				size, err := e.buf.Byte(end + 1 + int(off))
				if err != nil {
					e.log.WithField("offset", m[0]).Warnf("name indirection size: %v", err)
					continue
				}
				nameStart, nameLen = end+2+int(off), int(size)
			}
		}

		name, err := e.buf.ASCII(nameStart, nameStart+nameLen)
		if err != nil {
			e.log.WithField("offset", m[0]).Warnf("name read: %v", err)
			continue
		}
		if name == "" {
			continue
		}

		out = append(out, RawBlock{
			Kind:       format.KindFromLabel(label),
			Name:       name,
			Offset:     m[0],
			NameOffset: nameStart,
		})
	}

	return out
}

// scanAddressTokens finds the %DB-prefixed address tokens.
func (e *Extractor) scanAddressTokens() []*AddressRecord {
	text := e.buf.Text()

	var out []*AddressRecord
	for i := 0; ; {
		rel := strings.Index(text[i:], "%DB")
		if rel < 0 {
			break
		}
		i += rel
		rec := e.addressAt(i)
		if rec != nil {
			out = append(out, rec)
		}
		i++
	}

	return out
}

func (e *Extractor) addressAt(i int) *AddressRecord {
	size, err := e.buf.Byte(i - 1)
	if err != nil || size == 0 {
		return nil
	}

	rawToken, err := e.buf.ASCII(i, i+int(size))
	if err != nil {
		e.log.WithField("offset", i).Warnf("address token read: %v", err)
		return nil
	}

	cleaned := cleanToken(rawToken)
	if !dbTokenRe.MatchString(cleaned) {
		return nil
	}

	digits := digitsRe.FindString(cleaned)
	addr, err := strconv.ParseUint(digits, 10, 16)
	if err != nil {
		e.log.WithField("offset", i).Warnf("address token %q: %v: %v", cleaned, errs.ErrUnparseableAddress, err)
		return nil
	}

	return &AddressRecord{
		Token:      cleaned,
		RefAddress: uint16(addr),
		Offset:     i,
		// The blob offset is computed from the raw token length, before
		// cleaning.
		Blob: e.inlineBlob(i + len(rawToken)),
	}
}

// inlineBlob reads the 16-bit blob length at pos and opportunistically
// decompresses the spanned bytes. Failures leave the record without a blob.
func (e *Extractor) inlineBlob(pos int) []byte {
	v, err := e.buf.Uint16(pos)
	if err != nil || v == 0 || pos+int(v) > e.buf.Len() {
		return nil
	}

	data, err := e.buf.Slice(pos, pos+int(v))
	if err != nil {
		return nil
	}

	idx := bytes.Index(data, []byte{0x78, 0x5E})
	if idx < 0 {
		return nil
	}

	blob, err := fragment.InflateWhole(data[idx:])
	if err != nil {
		e.log.WithField("offset", pos).Debugf("inline blob undecodable, kept UNDEFINED: %v", err)
		return nil
	}

	return blob
}

// scanPlusBlocks decodes the composite PLUSBLOCK records.
func (e *Extractor) scanPlusBlocks() []*AddressRecord {
	text := e.buf.Text()

	var out []*AddressRecord
	for i := 0; ; {
		rel := strings.Index(text[i:], "PLUSBLOCK")
		if rel < 0 {
			break
		}
		i += rel
		rec := e.plusBlockAt(i)
		if rec != nil {
			out = append(out, rec)
		}
		i += len("PLUSBLOCK")
	}

	return out
}

func (e *Extractor) plusBlockAt(idx int) *AddressRecord {
	end := idx + len("PLUSBLOCK")

	dataSize, err := e.buf.Byte(end)
	if err != nil || dataSize == 0 {
		return nil
	}
	data, err := e.buf.Slice(end, end+int(dataSize))
	if err != nil {
		e.log.WithField("offset", idx).Warnf("plusblock data read: %v", err)
		return nil
	}

	m := bytes.Index(data, []byte("%DB"))
	if m <= 0 {
		return nil
	}

	addrStrSize := int(data[m-1])
	if addrStrSize == 0 || m+addrStrSize > len(data) {
		e.log.WithField("offset", idx).Warnf("plusblock address token length %d out of range", addrStrSize)
		return nil
	}
	token := cleanToken(string(data[m : m+addrStrSize]))

	refAddr, err := e.buf.Uint16(idx + plusAddressOffset)
	if err != nil {
		e.log.WithField("offset", idx).Warnf("plusblock reference address: %v", err)
		return nil
	}

	rec := &AddressRecord{
		Name:       e.plusBlockName(end + int(dataSize)),
		Token:      token,
		RefAddress: refAddr,
		Offset:     end + m,
	}

	// A non-zero second byte past the data region announces a follow-on
	// compressed block.
	if flag, err := e.buf.Byte(end + int(dataSize) + 1); err == nil && flag != 0 {
		rec.Blob = e.followOnBlob(end + int(dataSize))
	}

	return rec
}

// plusBlockName walks two chained length-prefix indirections to the
// human-readable block name. Names without a DB marker are discarded.
func (e *Extractor) plusBlockName(base int) string {
	off1, err := e.buf.Byte(base)
	if err != nil {
		return ""
	}
	off2, err := e.buf.Byte(base + int(off1))
	if err != nil {
		return ""
	}
	nameSize, err := e.buf.Byte(base + int(off1) + int(off2))
	if err != nil || nameSize == 0 {
		return ""
	}

	start := base + int(off1) + int(off2) + 1
	name, err := e.buf.ASCII(start, start+int(nameSize))
	if err != nil || !strings.Contains(name, "DB") {
		return ""
	}

	return name
}

func (e *Extractor) followOnBlob(base int) []byte {
	limit := base + blobSearchWindow
	if limit > e.buf.Len() {
		limit = e.buf.Len()
	}
	window := e.buf.Text()[base:limit]

	rel := strings.Index(window, "x^")
	if rel < 0 {
		return nil
	}
	q := base + rel

	size, err := e.buf.Uint16(q - 2)
	if err != nil || size == 0 {
		return nil
	}
	data, err := e.buf.SliceClamped(q, q+int(size))
	if err != nil {
		return nil
	}

	blob, err := fragment.InflateWhole(data)
	if err != nil {
		e.log.WithField("offset", q).Debugf("plusblock follow-on blob undecodable: %v", err)
		return nil
	}

	return blob
}

// pairAddresses attaches, to each DB block, the address record with the
// smallest positive byte-distance after it.
func pairAddresses(blocks []RawBlock, addrs []*AddressRecord) {
	for i := range blocks {
		if blocks[i].Kind != format.KindDB {
			continue
		}

		var best *AddressRecord
		for _, a := range addrs {
			if a.Offset <= blocks[i].Offset {
				continue
			}
			if best == nil || a.Offset-blocks[i].Offset < best.Offset-blocks[i].Offset {
				best = a
			}
		}
		blocks[i].Address = best
	}
}

// postProcess groups address records by byte offset (a PLUSBLOCK's %DB token
// is also found by the plain token scan), keeps the named records within
// multi-record groups, and sorts by reference address.
func postProcess(addrs []*AddressRecord) []*AddressRecord {
	byOffset := make(map[int][]*AddressRecord)
	for _, a := range addrs {
		byOffset[a.Offset] = append(byOffset[a.Offset], a)
	}

	var out []*AddressRecord
	for _, group := range byOffset {
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		named := group[:0:0]
		for _, a := range group {
			if a.Name != "" {
				named = append(named, a)
			}
		}
		if len(named) == 0 {
			named = group
		}
		out = append(out, named...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].RefAddress < out[j].RefAddress })

	return out
}

// cleanToken strips every byte outside [A-Za-z0-9.@_-].
func cleanToken(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '.', c == '@', c == '-', c == '_':
			b.WriteByte(c)
		}
	}

	return b.String()
}

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' {
			continue
		}

		return false
	}

	return true
}
