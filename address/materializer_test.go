package address

import (
	"io"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/plckit/plfaddr/element"
	"github.com/plckit/plfaddr/format"
	"github.com/plckit/plfaddr/xmlblock"
)

var outputRe = regexp.MustCompile(`^8A0E([0-9A-F]+(\.[0-9A-F]+)*)$`)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

func materialize(els []*element.Block) []Address {
	return NewMaterializer(discardLogger(), 0).Materialize(els)
}

func rootElement(name string, addr int32, members ...*xmlblock.MemberItem) *element.Block {
	return &element.Block{
		Name:          name,
		BlockKind:     format.KindDB,
		Address:       addr,
		ReferenceName: name,
		XML: &xmlblock.Block{
			Kind: format.ElementRoot,
			Root: &xmlblock.Root{Members: members},
		},
	}
}

func item(name, lid, dataType string) *xmlblock.MemberItem {
	return &xmlblock.MemberItem{Name: name, LID: lid, DataType: dataType}
}

func names(addrs []Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Name
	}

	return out
}

func find(t *testing.T, addrs []Address, name string) Address {
	t.Helper()
	for _, a := range addrs {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("address %q not in output", name)

	return Address{}
}

func TestMaterializeMinimal(t *testing.T) {
	addrs := materialize([]*element.Block{
		rootElement("FOO", 7, item("field", "0", "Int")),
	})

	require.Equal(t, []string{"FOO", "FOO.field"}, names(addrs))
	require.Equal(t, "8A0E7", addrs[0].ReferenceAddress)
	require.Equal(t, "8A0E7.0", addrs[1].ReferenceAddress)
}

func TestMaterializeArrayExpansion(t *testing.T) {
	t.Run("Single range", func(t *testing.T) {
		addrs := materialize([]*element.Block{
			rootElement("FOO", 7, item("field", "0", "Array[0..2] of Int")),
		})

		require.Equal(t, []string{
			"FOO", "FOO.field", "FOO.field[0]", "FOO.field[1]", "FOO.field[2]",
		}, names(addrs))
		require.Equal(t, "8A0E7.0.2", find(t, addrs, "FOO.field[2]").ReferenceAddress)
	})

	t.Run("Range yields b-a+1 children", func(t *testing.T) {
		p := &PlcItem{Name: "v", DataType: "Array[3..11] of Bool"}
		expandArrays([]*PlcItem{p})
		require.Len(t, p.Children, 11-3+1)
		require.Equal(t, "v[3]", p.Children[0].Name)
		require.Equal(t, "Bool", p.Children[0].DataType)
	})

	t.Run("Multiple ranges", func(t *testing.T) {
		p := &PlcItem{Name: "m", DataType: "Array[1..2, 5..6] of Word"}
		expandArrays([]*PlcItem{p})
		require.Len(t, p.Children, 4)
		require.Equal(t, "m[5]", p.Children[2].Name)
		require.Equal(t, "5", p.Children[2].AddressFragment)
	})

	t.Run("Non-array untouched", func(t *testing.T) {
		p := &PlcItem{Name: "s", DataType: "Struct"}
		expandArrays([]*PlcItem{p})
		require.Empty(t, p.Children)
	})
}

// TestMaterializeBorrowedXML covers the member-borrows-root scenario: a
// member element holding a root's tree emits that root's items under its own
// name.
func TestMaterializeBorrowedXML(t *testing.T) {
	donor := &xmlblock.Block{
		Kind: format.ElementRoot,
		Root: &xmlblock.Root{Members: []*xmlblock.MemberItem{
			item("i1", "0", "Int"),
			item("i2", "4", "Int"),
		}},
	}
	member := &element.Block{
		Name:          "PUMP",
		BlockKind:     format.KindDB,
		Address:       3,
		ReferenceName: "MOTOR",
		XML:           donor,
	}

	addrs := materialize([]*element.Block{member})
	require.Equal(t, []string{"PUMP", "PUMP.i1", "PUMP.i2"}, names(addrs))
	require.Equal(t, "8A0E3.4", find(t, addrs, "PUMP.i2").ReferenceAddress)
}

func TestMaterializeReferenceExpansion(t *testing.T) {
	outer := &element.Block{
		Name:          "FOO",
		BlockKind:     format.KindDB,
		Address:       7,
		ReferenceName: "FOO",
		XML: &xmlblock.Block{
			Kind: format.ElementRoot,
			Root: &xmlblock.Root{
				Externals: &xmlblock.Externals{Types: []*xmlblock.ExternalType{{
					Type:       "SUB",
					BlockClass: "FB",
					Usages:     []*xmlblock.Usage{{Path: "2", Name: "u"}},
				}}},
			},
		},
	}
	sub := rootElement("SUB", 9, item("inner", "1", "Int"))

	addrs := materialize([]*element.Block{outer, sub})

	require.Equal(t, "8A0E7.2", find(t, addrs, "FOO.u").ReferenceAddress)
	require.Equal(t, "8A0E7.2.1", find(t, addrs, "FOO.u.inner").ReferenceAddress)
	// The referenced block still materializes on its own.
	require.Equal(t, "8A0E9.1", find(t, addrs, "SUB.inner").ReferenceAddress)
}

func TestMaterializeOrderingAndFiltering(t *testing.T) {
	addrs := materialize([]*element.Block{
		rootElement("HIGH", 9, item("a", "0", "Int")),
		rootElement("ZERO", 0, item("b", "0", "Int")),
		rootElement("LOW", 7, item("c", "0", "Int")),
	})

	// Zero-address containers are dropped; survivors sort by address.
	require.Equal(t, []string{"LOW", "LOW.c", "HIGH", "HIGH.a"}, names(addrs))
}

func TestMaterializeFormatting(t *testing.T) {
	t.Run("Uppercase hex", func(t *testing.T) {
		addrs := materialize([]*element.Block{
			rootElement("BIG", 255, item("f", "10", "Int")),
		})
		require.Equal(t, "8A0EFF", addrs[0].ReferenceAddress)
		require.Equal(t, "8A0EFF.A", addrs[1].ReferenceAddress)
	})

	t.Run("Output shape property", func(t *testing.T) {
		addrs := materialize([]*element.Block{
			rootElement("FOO", 7,
				item("x", "0", "Array[0..3] of Int"),
				item("y", "12", "Int"),
			),
			rootElement("BAR", 200, item("z", "33", "Int")),
		})
		require.NotEmpty(t, addrs)
		for _, a := range addrs {
			require.Regexp(t, outputRe, a.ReferenceAddress)
		}
	})

	t.Run("Unaddressed items skipped", func(t *testing.T) {
		addrs := materialize([]*element.Block{
			rootElement("FOO", 7, item("noaddr", "", "Int"), item("ok", "4", "Int")),
		})
		require.Equal(t, []string{"FOO", "FOO.ok"}, names(addrs))
	})
}

// TestMaterializeUniqueNames covers the uniqueness property: aliased element
// names never produce duplicate output rows.
func TestMaterializeUniqueNames(t *testing.T) {
	addrs := materialize([]*element.Block{
		rootElement("FOO", 7, item("field", "0", "Int")),
		rootElement("FOO", 7, item("field", "0", "Int")),
	})

	seen := make(map[string]struct{})
	for _, a := range addrs {
		_, dup := seen[a.Name]
		require.False(t, dup, "duplicate name %q", a.Name)
		seen[a.Name] = struct{}{}
	}
}
