// Package xmlblock decodes the <Root> and <Member> XML trees that describe
// block members, and recovers the header record that ties each tree to its
// element ID.
package xmlblock

import "github.com/plckit/plfaddr/format"

// Header is the element identity of an XML tree, recovered from the
// BIVE:/BI: block-data string found by header recovery.
type Header struct {
	ID   string
	Name string
}

// ParamSize mirrors the ParamSize child of a root Offsets element.
type ParamSize struct {
	StdSize  string
	VolSize  string
	VolFlags string
	AllFlags string
}

// Offsets mirrors an Offsets element. Member offsets carry no VolSize and no
// ParamSize.
type Offsets struct {
	StdSize string
	OptSize string
	Flags   string
	CRC     string
	VolSize string
	Param   *ParamSize
	// O is the ordered list of every descendant o element's o attribute.
	O []string
}

// Usage is one usage site of an external type.
type Usage struct {
	Path     string
	Name     string
	VolStart string
	Section  string
}

// ExternalType describes one externally referenced block type.
type ExternalType struct {
	SubPartIndex string
	Type         string // Name attribute
	BlockClass   string
	Usages       []*Usage
}

// Externals collects a root's external references.
type Externals struct {
	MultiFBCount int
	Types        []*ExternalType
}

// MemberItem is one Member element, possibly nested.
type MemberItem struct {
	ID           string
	Name         string
	RID          string
	LID          string
	StdO         string
	V            string
	SubPartIndex string
	DataType     string // Type attribute
	Children     []*MemberItem
}

// Root is the payload of a <Root> tree.
type Root struct {
	Header          Header
	InterfaceGuid   string
	Members         []*MemberItem
	Offsets         *Offsets
	ExtVolatileSize string // ExtensionMemory@VolatileSize
	Externals       *Externals
}

// Member is the payload of a <Member> tree.
type Member struct {
	Header   Header
	ParentID string
	Offsets  []*Offsets
	Members  []*MemberItem
}

// Block is one decoded XML tree with its location in the container. Exactly
// one of Root and Member is set, keyed by Kind.
type Block struct {
	Kind       format.ElementKind
	Root       *Root
	Member     *Member
	Offset     int
	Size       int
	Compressed bool
}

// Hdr returns the recovered header of either payload variant.
func (b *Block) Hdr() *Header {
	if b.Kind == format.ElementRoot && b.Root != nil {
		return &b.Root.Header
	}
	if b.Member != nil {
		return &b.Member.Header
	}

	return nil
}

// ElementID returns the recovered element ID, "" when the header is missing.
func (b *Block) ElementID() string {
	if h := b.Hdr(); h != nil {
		return h.ID
	}

	return ""
}

// Items returns the top-level member items of either payload variant.
func (b *Block) Items() []*MemberItem {
	if b.Kind == format.ElementRoot && b.Root != nil {
		return b.Root.Members
	}
	if b.Member != nil {
		return b.Member.Members
	}

	return nil
}
