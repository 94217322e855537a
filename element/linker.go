package element

import (
	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/errs"
	"github.com/plckit/plfaddr/format"
	"github.com/plckit/plfaddr/ident"
	"github.com/plckit/plfaddr/internal/hash"
	"github.com/plckit/plfaddr/rawblock"
	"github.com/plckit/plfaddr/xmlblock"
)

// Link resolves every element's address and attachments against the raw
// blocks, reference blocks, and XML blocks. Elements left with no link of any
// kind are logged and keep address zero, which drops them at materialization.
func Link(els []*Block, raw rawblock.Result, refs []ident.ReferenceBlock, xmls []*xmlblock.Block, log logrus.FieldLogger) {
	linkRawBlocks(els, raw)
	linkReferenceBlocks(els, refs, log)
	linkXMLBlocks(els, xmls)
	borrowXML(els)

	for _, el := range els {
		if el.Raw == nil && el.XML == nil && el.ReferenceName == el.Name {
			log.WithField("offset", el.DataOffset).Warnf("element %q: %v", el.Name, errs.ErrUnmatchedElement)
		}
	}
}

// linkRawBlocks attaches each DB raw block to the first element carrying the
// same name and copies over its paired reference address.
func linkRawBlocks(els []*Block, raw rawblock.Result) {
	for i := range raw.Blocks {
		rb := &raw.Blocks[i]
		if rb.Kind != format.KindDB {
			continue
		}
		for _, el := range els {
			if el.Name != rb.Name {
				continue
			}
			el.Raw = rb
			if rb.Address != nil {
				el.Address = int32(rb.Address.RefAddress)
			}

			break
		}
	}
}

// linkReferenceBlocks matches elements to instance records by ID name. An
// equal address confirms the link; a differing address overrides the
// element's.
func linkReferenceBlocks(els []*Block, refs []ident.ReferenceBlock, log logrus.FieldLogger) {
	for _, el := range els {
		blockName := el.Name
		if el.Raw != nil {
			blockName = el.Raw.Name
		}

		var fallback *ident.InstanceRecord
		var fallbackBlock string
		linked := false
		for r := range refs {
			for i := range refs[r].Instances {
				inst := &refs[r].Instances[i]
				if inst.Props.IDName != blockName {
					continue
				}
				if inst.Address == el.Address {
					el.ReferenceName = refs[r].BlockName
					linked = true

					break
				}
				if fallback == nil {
					fallback = inst
					fallbackBlock = refs[r].BlockName
				}
			}
			if linked {
				break
			}
		}

		if !linked && fallback != nil {
			log.WithField("offset", el.DataOffset).Debugf(
				"element %q address %d overridden by reference instance address %d", el.Name, el.Address, fallback.Address)
			el.Address = fallback.Address
			el.ReferenceName = fallbackBlock
		}
	}
}

func linkXMLBlocks(els []*Block, xmls []*xmlblock.Block) {
	byID := make(map[uint64]*xmlblock.Block, len(xmls))
	for _, x := range xmls {
		if id := x.ElementID(); id != "" {
			byID[hash.ID(id)] = x
		}
	}

	for _, el := range els {
		if x, ok := byID[hash.ID(el.ID)]; ok {
			el.XML = x
		}
	}
}

// borrowXML gives an element without its own XML the tree of the element its
// reference block names.
func borrowXML(els []*Block) {
	byName := make(map[string]*Block, len(els))
	for _, el := range els {
		if el.XML != nil {
			if _, ok := byName[el.Name]; !ok {
				byName[el.Name] = el
			}
		}
	}

	for _, el := range els {
		if el.XML != nil {
			continue
		}
		if donor, ok := byName[el.ReferenceName]; ok {
			el.XML = donor.XML
		}
	}
}
