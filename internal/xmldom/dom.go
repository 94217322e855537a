// Package xmldom builds a minimal in-memory DOM over encoding/xml tokens.
//
// The parsing passes need to query arbitrary descendants and attributes of
// small XML fragments recovered from the container; a full tree is simpler
// and cheaper than repeated streaming decodes. Parsing stops at the close of
// the first root element, so trailing container bytes after a raw-scanned
// fragment are ignored.
package xmldom

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/plckit/plfaddr/errs"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Node is one element of the parsed tree.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Node
	Text     string
}

// Parse decodes data into a Node tree. A leading UTF-8 BOM and embedded NUL
// bytes are stripped first; both occur in fragments lifted out of the raw
// container.
func Parse(data []byte) (*Node, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.IndexByte(data, 0x00) >= 0 {
		data = bytes.ReplaceAll(data, []byte{0x00}, nil)
	}

	dec := xml.NewDecoder(bytes.NewReader(data))

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("no root element: %w", errs.ErrMalformedXMLFragment)
			}

			return nil, fmt.Errorf("%v: %w", err, errs.ErrMalformedXMLFragment)
		}

		if start, ok := tok.(xml.StartElement); ok {
			root, err := decodeElement(dec, start)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", err, errs.ErrMalformedXMLFragment)
			}

			return root, nil
		}
	}
}

func decodeElement(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{
		Name:  start.Name,
		Attrs: start.Attr,
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			n.Text += string(t)
		case xml.EndElement:
			return n, nil
		}
	}
}

// Local returns the element's local name.
func (n *Node) Local() string {
	return n.Name.Local
}

// Attr returns the value of the attribute with the given local name, or ""
// when absent.
func (n *Node) Attr(local string) string {
	v, _ := n.LookupAttr(local)
	return v
}

// LookupAttr returns the attribute value and whether it is present.
func (n *Node) LookupAttr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}

	return "", false
}

// Child returns the first direct child with the given local name, or nil.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}

	return nil
}

// Descendants collects every descendant (excluding n itself) with the given
// local name, in document order.
func (n *Node) Descendants(local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
		out = append(out, c.Descendants(local)...)
	}

	return out
}

// DirectChildren returns every direct child with the given local name.
func (n *Node) DirectChildren(local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
	}

	return out
}

// FirstDescendant returns the first descendant with the given local name in
// document order, or nil.
func (n *Node) FirstDescendant(local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
		if d := c.FirstDescendant(local); d != nil {
			return d
		}
	}

	return nil
}
