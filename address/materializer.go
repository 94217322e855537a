package address

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plckit/plfaddr/element"
	"github.com/plckit/plfaddr/format"
	"github.com/plckit/plfaddr/xmlblock"
)

// Materializer implements the address pass.
type Materializer struct {
	log      logrus.FieldLogger
	maxDepth int
}

// NewMaterializer creates a Materializer. maxDepth <= 0 falls back to
// DefaultMaxExpansionDepth.
func NewMaterializer(log logrus.FieldLogger, maxDepth int) *Materializer {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxExpansionDepth
	}

	return &Materializer{log: log, maxDepth: maxDepth}
}

// Materialize builds the item trees for every linked element, expands arrays
// and block references, and flattens the result to the output address list.
func (m *Materializer) Materialize(els []*element.Block) []Address {
	containers := m.buildContainers(els)
	m.expandReferences(containers)

	return m.flatten(containers)
}

// buildContainers groups elements by name into outer containers, one
// PlcBlock per element instance.
func (m *Materializer) buildContainers(els []*element.Block) []*Container {
	byName := make(map[string]*Container)
	var out []*Container

	for _, el := range els {
		c, ok := byName[el.Name]
		if !ok {
			c = &Container{Name: el.Name}
			byName[el.Name] = c
			out = append(out, c)
		}

		blk := &PlcBlock{
			Name:    el.Name,
			Kind:    el.BlockKind,
			Address: el.Address,
			Items:   m.blockItems(el),
		}
		expandArrays(blk.Items)
		c.Blocks = append(c.Blocks, blk)
		if c.Address == 0 {
			c.Address = el.Address
		}
	}

	return out
}

// blockItems derives a block's items from its XML tree: external usages
// first for roots, then the member items.
func (m *Materializer) blockItems(el *element.Block) []*PlcItem {
	if el.XML == nil {
		return nil
	}

	var items []*PlcItem
	if el.XML.Kind == format.ElementRoot && el.XML.Root != nil && el.XML.Root.Externals != nil {
		pos := 0
		for _, et := range el.XML.Root.Externals.Types {
			for _, u := range et.Usages {
				items = append(items, &PlcItem{
					ID:              strconv.Itoa(pos),
					Name:            u.Name,
					AddressFragment: u.Path,
					Kind:            parseBlockClass(et.BlockClass),
					DataType:        "UNDEFINED",
					ReferenceName:   et.Type,
				})
				pos++
			}
		}
	}

	for _, mi := range el.XML.Items() {
		items = append(items, m.convertItem(mi, el.BlockKind))
	}

	return items
}

func (m *Materializer) convertItem(mi *xmlblock.MemberItem, kind format.BlockKind) *PlcItem {
	it := &PlcItem{
		ID:              mi.ID,
		Name:            mi.Name,
		AddressFragment: mi.LID,
		Kind:            kind,
		DataType:        mi.DataType,
	}
	for _, ch := range mi.Children {
		it.Children = append(it.Children, m.convertItem(ch, kind))
	}

	return it
}

// expandReferences appends, to every item naming a reference block, a copy of
// that block's items, recursively up to the depth bound.
func (m *Materializer) expandReferences(containers []*Container) {
	byName := make(map[string]*PlcBlock)
	for _, c := range containers {
		for _, b := range c.Blocks {
			if _, ok := byName[b.Name]; !ok {
				byName[b.Name] = b
			}
		}
	}

	var walk func(items []*PlcItem, depth int)
	walk = func(items []*PlcItem, depth int) {
		for _, it := range items {
			if it.ReferenceName != "" {
				if depth >= m.maxDepth {
					m.log.Warnf("reference expansion truncated at depth %d for %q", depth, it.Name)
					continue
				}
				if src, ok := byName[it.ReferenceName]; ok {
					for _, child := range src.Items {
						it.Children = append(it.Children, child.Clone())
					}
				}
			}
			walk(it.Children, depth+1)
		}
	}

	for _, c := range containers {
		for _, b := range c.Blocks {
			walk(b.Items, 0)
		}
	}
}

// flatten emits the depth-first address stream of the containers sorted by
// address, containers at address zero dropped.
func (m *Materializer) flatten(containers []*Container) []Address {
	kept := containers[:0:0]
	for _, c := range containers {
		if c.Address == 0 {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Address < kept[j].Address })

	var out []Address
	seen := make(map[string]struct{})
	emit := func(name, ref string) {
		if _, dup := seen[name]; dup {
			m.log.Debugf("duplicate address name %q suppressed", name)
			return
		}
		seen[name] = struct{}{}
		out = append(out, Address{Name: name, ReferenceAddress: m.formatReference(ref)})
	}

	var walk func(prefixName, prefixRef, parentName string, items []*PlcItem)
	walk = func(prefixName, prefixRef, parentName string, items []*PlcItem) {
		for _, it := range items {
			if it.AddressFragment == "" {
				continue
			}
			name := prefixName + "." + it.Name
			// Array elements are named "<parent>[i]"; they extend the parent's
			// dotted name instead of adding a segment.
			if parentName != "" && strings.HasPrefix(it.Name, parentName+"[") {
				name = prefixName + it.Name[len(parentName):]
			}
			ref := prefixRef + "." + it.AddressFragment
			emit(name, ref)
			walk(name, ref, it.Name, it.Children)
		}
	}

	for _, c := range kept {
		root := strconv.FormatInt(int64(c.Address), 10)
		emit(c.Name, root)
		for _, b := range c.Blocks {
			walk(c.Name, root, "", b.Items)
		}
	}

	return out
}

// formatReference renders a dotted decimal reference as dot-joined
// uppercase-hex segments behind the domain tag. Non-numeric segments pass
// through unchanged.
func (m *Materializer) formatReference(ref string) string {
	segs := strings.Split(ref, ".")
	for i, s := range segs {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			m.log.Warnf("non-numeric reference segment %q kept verbatim", s)
			continue
		}
		segs[i] = strings.ToUpper(strconv.FormatInt(v, 16))
	}

	return DomainTag + strings.Join(segs, ".")
}

func parseBlockClass(class string) format.BlockKind {
	if k := format.KindFromLabel(class); k != format.KindUndefined {
		return k
	}

	return format.ClassifyName(class)
}
