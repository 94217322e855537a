// Package address materializes linked elements into PLC item trees and
// flattens them to (symbolic name, reference address) pairs.
package address

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/plckit/plfaddr/format"
)

// DomainTag prefixes every formatted reference address.
const DomainTag = "8A0E"

// DefaultMaxExpansionDepth bounds reference expansion so cyclic reference
// chains terminate.
const DefaultMaxExpansionDepth = 32

var arrayTypeRe = regexp.MustCompile(`Array\[(\d+\.\.\d+(?:,\s*\d+\.\.\d+)*)\] of (\w+)`)

// PlcItem is one addressable datum in a block's item tree.
type PlcItem struct {
	ID   string
	Name string
	// AddressFragment is this item's segment of the dotted reference address.
	AddressFragment string
	Kind            format.BlockKind
	DataType        string
	// ReferenceName points at the block whose items this item inherits, ""
	// for plain members.
	ReferenceName string
	Children      []*PlcItem
}

// Clone deep-copies the item tree. Reference expansion copies, never shares,
// so traversal terminates without cycle detection.
func (p *PlcItem) Clone() *PlcItem {
	c := *p
	c.Children = make([]*PlcItem, 0, len(p.Children))
	for _, ch := range p.Children {
		c.Children = append(c.Children, ch.Clone())
	}

	return &c
}

// PlcBlock is one element instance's item tree.
type PlcBlock struct {
	Name    string
	Kind    format.BlockKind
	Address int32
	Items   []*PlcItem
}

// Container is the outer per-name grouping of blocks.
type Container struct {
	Name    string
	Address int32
	Blocks  []*PlcBlock
}

// Address is one line of the final output.
type Address struct {
	// Name is the dotted symbolic name.
	Name string
	// ReferenceAddress is the dot-joined uppercase-hex address with the
	// domain tag prefix.
	ReferenceAddress string
}

// expandArrays walks an item tree and adds one child per enumerated index to
// every item whose data type is an array.
func expandArrays(items []*PlcItem) {
	for _, it := range items {
		expandArrays(it.Children)

		m := arrayTypeRe.FindStringSubmatch(it.DataType)
		if m == nil {
			continue
		}
		for _, rng := range strings.Split(m[1], ",") {
			bounds := strings.SplitN(strings.TrimSpace(rng), "..", 2)
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil || hi < lo {
				continue
			}
			for i := lo; i <= hi; i++ {
				it.Children = append(it.Children, &PlcItem{
					Name:            fmt.Sprintf("%s[%d]", it.Name, i),
					AddressFragment: strconv.Itoa(i),
					Kind:            it.Kind,
					DataType:        m[2],
				})
			}
		}
	}
}
