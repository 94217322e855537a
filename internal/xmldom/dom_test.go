package xmldom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plckit/plfaddr/errs"
)

func TestParse(t *testing.T) {
	t.Run("BOM and NUL stripping", func(t *testing.T) {
		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("<Root a=\"1\">\x00<Member Name=\"m\"/></Root>")...)
		doc, err := Parse(data)
		require.NoError(t, err)
		require.Equal(t, "Root", doc.Local())
		require.Equal(t, "1", doc.Attr("a"))
		require.Len(t, doc.Children, 1)
	})

	t.Run("Trailing garbage ignored", func(t *testing.T) {
		doc, err := Parse([]byte("<Root/>\x01\x02 not xml at all"))
		require.NoError(t, err)
		require.Equal(t, "Root", doc.Local())
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := Parse([]byte("<Root><unclosed></Root>"))
		require.ErrorIs(t, err, errs.ErrMalformedXMLFragment)

		_, err = Parse([]byte("   "))
		require.ErrorIs(t, err, errs.ErrMalformedXMLFragment)
	})
}

func TestNodeQueries(t *testing.T) {
	doc, err := Parse([]byte(`<Root>
		<Offsets stdSize="10"><o o="1"/><inner><o o="2"/></inner></Offsets>
		<Member Name="a"><Member Name="b"/></Member>
	</Root>`))
	require.NoError(t, err)

	t.Run("Child", func(t *testing.T) {
		off := doc.Child("Offsets")
		require.NotNil(t, off)
		require.Equal(t, "10", off.Attr("stdSize"))
		require.Nil(t, doc.Child("Missing"))
	})

	t.Run("Descendants in document order", func(t *testing.T) {
		os := doc.Child("Offsets").Descendants("o")
		require.Len(t, os, 2)
		require.Equal(t, "1", os[0].Attr("o"))
		require.Equal(t, "2", os[1].Attr("o"))

		members := doc.Descendants("Member")
		require.Len(t, members, 2)
		require.Equal(t, "a", members[0].Attr("Name"))
	})

	t.Run("DirectChildren excludes nested", func(t *testing.T) {
		require.Len(t, doc.DirectChildren("Member"), 1)
	})

	t.Run("FirstDescendant", func(t *testing.T) {
		m := doc.FirstDescendant("Member")
		require.NotNil(t, m)
		require.Equal(t, "a", m.Attr("Name"))
	})

	t.Run("Missing attribute is empty", func(t *testing.T) {
		_, ok := doc.LookupAttr("nope")
		require.False(t, ok)
		require.Equal(t, "", doc.Attr("nope"))
	})
}
