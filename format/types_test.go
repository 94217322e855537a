package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyName(t *testing.T) {
	t.Run("Precedence", func(t *testing.T) {
		// UDT wins over DB even though both markers are present.
		require.Equal(t, KindUDT, ClassifyName("MyUDTforDB"))
		// FB wins over OB.
		require.Equal(t, KindFB, ClassifyName("FBandOB"))
	})

	t.Run("Single markers", func(t *testing.T) {
		require.Equal(t, KindDB, ClassifyName("DataDB1"))
		require.Equal(t, KindOB, ClassifyName("MainOB"))
		require.Equal(t, KindFC, ClassifyName("CalcFC"))
	})

	t.Run("No marker", func(t *testing.T) {
		require.Equal(t, KindUndefined, ClassifyName("Motor"))
		require.Equal(t, KindUndefined, ClassifyName(""))
	})
}

func TestKindFromPrefix(t *testing.T) {
	require.Equal(t, KindUDT, KindFromPrefix("DT"))
	require.Equal(t, KindFB, KindFromPrefix("FB"))
	require.Equal(t, KindDB, KindFromPrefix("DB"))
	require.Equal(t, KindOB, KindFromPrefix("OB"))
	require.Equal(t, KindFC, KindFromPrefix("FC"))
	require.Equal(t, KindUndefined, KindFromPrefix("ZZ"))
}

func TestKindFromMarker(t *testing.T) {
	require.Equal(t, KindDB, KindFromMarker("DB!"))
	require.Equal(t, KindUDT, KindFromMarker("UDT!"))
	require.Equal(t, KindUndefined, KindFromMarker("PLUSBLOCK"))
}

func TestBlockKindString(t *testing.T) {
	require.Equal(t, "DB", KindDB.String())
	require.Equal(t, "UNDEFINED", KindUndefined.String())
	require.Equal(t, "Root", ElementRoot.String())
	require.Equal(t, "Member", ElementMember.String())
}
