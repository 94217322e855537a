package xmlblock

import (
	"strconv"

	"github.com/plckit/plfaddr/internal/xmldom"
)

// mapRoot maps a parsed <Root> tree onto the Root payload.
func mapRoot(doc *xmldom.Node) *Root {
	r := &Root{
		InterfaceGuid: doc.Attr("InterfaceGuid"),
		Members:       collectItems(doc),
	}

	if off := doc.Child("Offsets"); off != nil {
		r.Offsets = mapOffsets(off, true)
	}
	if ext := doc.Child("ExtensionMemory"); ext != nil {
		r.ExtVolatileSize = ext.Attr("VolatileSize")
	}
	if exts := doc.Child("Externals"); exts != nil {
		r.Externals = mapExternals(exts)
	}

	return r
}

// mapMember maps a parsed <Member> tree onto the Member payload. A missing
// ParentId collapses to the InternalSection sentinel.
func mapMember(doc *xmldom.Node) *Member {
	m := &Member{
		ParentID: doc.Attr("ParentId"),
		Members:  collectItems(doc),
	}
	if m.ParentID == "" {
		m.ParentID = "InternalSection"
	}

	for _, off := range doc.Descendants("Offsets") {
		m.Offsets = append(m.Offsets, mapOffsets(off, false))
	}

	return m
}

// collectItems gathers Member elements below n, preserving nesting: a Member
// child becomes an item whose children come from its own subtree, Offsets,
// Externals and ExtensionMemory children are skipped, and any other child is
// descended through transparently.
func collectItems(n *xmldom.Node) []*MemberItem {
	var out []*MemberItem
	for _, c := range n.Children {
		if c.Local() == "Member" {
			out = append(out, buildItem(c))
			continue
		}
		if c.Local() == "Offsets" || c.Local() == "Externals" || c.Local() == "ExtensionMemory" {
			continue
		}
		out = append(out, collectItems(c)...)
	}

	return out
}

func buildItem(n *xmldom.Node) *MemberItem {
	return &MemberItem{
		ID:           n.Attr("ID"),
		Name:         n.Attr("Name"),
		RID:          n.Attr("RID"),
		LID:          n.Attr("LID"),
		StdO:         n.Attr("StdO"),
		V:            n.Attr("v"),
		SubPartIndex: n.Attr("SubPartIndex"),
		DataType:     n.Attr("Type"),
		Children:     collectItems(n),
	}
}

func mapOffsets(n *xmldom.Node, root bool) *Offsets {
	o := &Offsets{
		StdSize: n.Attr("stdSize"),
		OptSize: n.Attr("optSize"),
		Flags:   n.Attr("Flags"),
		CRC:     n.Attr("CRC"),
	}
	if root {
		o.VolSize = n.Attr("volSize")
		if ps := n.Child("ParamSize"); ps != nil {
			o.Param = &ParamSize{
				StdSize:  ps.Attr("stdSize"),
				VolSize:  ps.Attr("volSize"),
				VolFlags: ps.Attr("volFlags"),
				AllFlags: ps.Attr("allFlags"),
			}
		}
	}

	for _, oe := range n.Descendants("o") {
		o.O = append(o.O, oe.Attr("o"))
	}

	return o
}

func mapExternals(n *xmldom.Node) *Externals {
	e := &Externals{}
	if v, err := strconv.Atoi(n.Attr("MultiFBCount")); err == nil {
		e.MultiFBCount = v
	}

	for _, et := range n.DirectChildren("ExternalType") {
		t := &ExternalType{
			SubPartIndex: et.Attr("SubPartIndex"),
			Type:         et.Attr("Name"),
			BlockClass:   et.Attr("BlockClass"),
		}
		for _, u := range et.Descendants("Usage") {
			usage := &Usage{
				Path:     u.Attr("Path"),
				Name:     u.Attr("Name"),
				VolStart: u.Attr("volStart"),
				Section:  u.Attr("Section"),
			}
			if usage.Section == "" {
				usage.Section = "Static"
			}
			t.Usages = append(t.Usages, usage)
		}
		e.Types = append(e.Types, t)
	}

	return e
}
