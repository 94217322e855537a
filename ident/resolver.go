// Package ident resolves IdentXmlPart records into reference blocks.
//
// IdentXmlPart fragments live both as plain text in the container and inside
// the zlib-compressed fragments; either way they describe AufDBBlock and
// DepDBBlock instances that tie a block name to a numeric address. Instances
// sharing a TRKG tracking key belong to the same reference block.
package ident

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/container"
	"github.com/plckit/plfaddr/errs"
	"github.com/plckit/plfaddr/fragment"
	"github.com/plckit/plfaddr/internal/xmldom"
	"github.com/plckit/plfaddr/scan"
)

// Namespace is the Siemens Identity Manager schema the DBBlock records are
// declared under.
const Namespace = "http://schemas.siemens.com/Simatic/ES/14/IdentManager/IdentXmlPart.xsd"

var identPartRe = regexp.MustCompile(`(?s)<IdentXmlPart.*?</IdentXmlPart>`)

// Properties carries the attribute set copied from one DBBlock record. Any
// attribute missing in the XML is the empty string.
type Properties struct {
	IDName string // ID@N
	IDS    string // ID@S
	IDRID  string // ID@RID
	IDIS   string // ID@IS
	CSNID  string // ID/CS/C@NID
	CSUID  string // ID/CS/C@UID
	CSAK   string // ID/CS/C@AK
	ODDTR  string // OD@DTR
	ODS    string // OD@S
	ODT    string // OD/TD@T, of the form BlockType:BlockID:Name
	TODN   string // TOD@N, the decimal reference address
	TODSM  string // TOD@SM
	TODBT  string // TOD@BT
	TODCID string // TOD@CID
	Trkg   string // TOD@TRKG
	DBBDIM string // DBBD@IM
	DBBDNR string // DBBD@NR
}

// InstanceRecord is one DBBlock instance extracted from an IdentXmlPart.
type InstanceRecord struct {
	Props     Properties
	Name      string // third component of OD/TD/T
	KindLabel string // first component of OD/TD/T
	BlockID   string // second component of OD/TD/T
	Offset    int    // byte offset of the enclosing fragment
	Address   int32  // TOD@N parsed as decimal
	Trkg      string
}

// ReferenceBlock groups the instances that share a TRKG tracking key.
type ReferenceBlock struct {
	Trkg      string
	BlockName string
	KindLabel string
	Instances []InstanceRecord
}

// Resolver implements the reference-block pass.
type Resolver struct {
	buf     *container.Buffer
	scanner *scan.Scanner
	log     logrus.FieldLogger
}

// NewResolver creates a Resolver over buf.
func NewResolver(buf *container.Buffer, scanner *scan.Scanner, log logrus.FieldLogger) *Resolver {
	return &Resolver{buf: buf, scanner: scanner, log: log}
}

// Resolve scans the raw text and the decompressed fragments and returns the
// reference blocks, deduplicated and sorted.
func (r *Resolver) Resolve(frags []fragment.Fragment) []ReferenceBlock {
	byTrkg := make(map[string]int)
	var blocks []ReferenceBlock

	add := func(inst InstanceRecord) {
		i, ok := byTrkg[inst.Trkg]
		if !ok {
			blocks = append(blocks, ReferenceBlock{
				Trkg:      inst.Trkg,
				BlockName: inst.Name,
				KindLabel: inst.KindLabel,
			})
			i = len(blocks) - 1
			byTrkg[inst.Trkg] = i
		}
		blocks[i].Instances = append(blocks[i].Instances, inst)
	}

	r.scanRaw(add)
	r.scanFragments(frags, add)

	for i := range blocks {
		blocks[i].Instances = dedupeByAddress(blocks[i].Instances)
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return firstAddress(blocks[i]) < firstAddress(blocks[j])
	})

	return blocks
}

func (r *Resolver) scanRaw(add func(InstanceRecord)) {
	matches, err := r.scanner.FindAllIndex(identPartRe, r.buf.Text())
	if err != nil {
		r.log.WithField("offset", 0).Warnf("ident raw scan failed: %v", err)
		return
	}

	for _, m := range matches {
		text := r.buf.Text()[m[0]:m[1]]
		if !strings.Contains(text, "DBBlock") {
			continue
		}
		doc, err := xmldom.Parse([]byte(text))
		if err != nil {
			r.log.WithField("offset", m[0]).Warnf("ident fragment parse: %v", err)
			continue
		}
		r.collect(doc, m[0], add)
	}
}

func (r *Resolver) scanFragments(frags []fragment.Fragment, add func(InstanceRecord)) {
	for _, f := range frags {
		if f.RootLocal != "IdentXmlPart" {
			continue
		}
		r.collect(f.Doc, f.Offset, add)
	}
}

func (r *Resolver) collect(doc *xmldom.Node, offset int, add func(InstanceRecord)) {
	for _, name := range []string{"AufDBBlock", "DepDBBlock"} {
		for _, n := range doc.Descendants(name) {
			if n.Name.Space != "" && n.Name.Space != Namespace {
				continue
			}
			inst, err := buildInstance(n, offset)
			if err != nil {
				r.log.WithField("offset", offset).Warnf("ident %s record: %v", name, err)
				continue
			}
			add(inst)
		}
	}
}

// buildInstance copies the record's attribute set and validates the
// three-component OD/TD/T descriptor.
func buildInstance(n *xmldom.Node, offset int) (InstanceRecord, error) {
	var p Properties

	if id := n.FirstDescendant("ID"); id != nil {
		p.IDName = id.Attr("N")
		p.IDS = id.Attr("S")
		p.IDRID = id.Attr("RID")
		p.IDIS = id.Attr("IS")
		if c := id.FirstDescendant("C"); c != nil {
			p.CSNID = c.Attr("NID")
			p.CSUID = c.Attr("UID")
			p.CSAK = c.Attr("AK")
		}
	}
	if od := n.FirstDescendant("OD"); od != nil {
		p.ODDTR = od.Attr("DTR")
		p.ODS = od.Attr("S")
		if td := od.FirstDescendant("TD"); td != nil {
			p.ODT = td.Attr("T")
		}
	}
	if tod := n.FirstDescendant("TOD"); tod != nil {
		p.TODN = tod.Attr("N")
		p.TODSM = tod.Attr("SM")
		p.TODBT = tod.Attr("BT")
		p.TODCID = tod.Attr("CID")
		p.Trkg = tod.Attr("TRKG")
	}
	if dbbd := n.FirstDescendant("DBBD"); dbbd != nil {
		p.DBBDIM = dbbd.Attr("IM")
		p.DBBDNR = dbbd.Attr("NR")
	}

	parts := strings.Split(p.ODT, ":")
	if p.ODT == "" || len(parts) != 3 {
		return InstanceRecord{}, fmt.Errorf("OD/TD/T %q is not BlockType:BlockID:Name: %w", p.ODT, errs.ErrFormatViolation)
	}

	addr, err := strconv.ParseInt(p.TODN, 10, 32)
	if err != nil {
		return InstanceRecord{}, fmt.Errorf("TOD/N %q: %v: %w", p.TODN, err, errs.ErrUnparseableAddress)
	}

	return InstanceRecord{
		Props:     p,
		KindLabel: parts[0],
		BlockID:   parts[1],
		Name:      parts[2],
		Offset:    offset,
		Address:   int32(addr),
		Trkg:      p.Trkg,
	}, nil
}

// dedupeByAddress keeps the last-encountered instance per address and sorts
// the survivors ascending.
func dedupeByAddress(insts []InstanceRecord) []InstanceRecord {
	latest := make(map[int32]InstanceRecord, len(insts))
	for _, in := range insts {
		latest[in.Address] = in
	}

	out := make([]InstanceRecord, 0, len(latest))
	for _, in := range latest {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	return out
}

func firstAddress(b ReferenceBlock) int32 {
	if len(b.Instances) == 0 {
		return 0
	}

	return b.Instances[0].Address
}
