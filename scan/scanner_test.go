package scan

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScannerFindAll(t *testing.T) {
	s := New(time.Second)
	re := regexp.MustCompile(`DB\d+`)

	matches, err := s.FindAllIndex(re, "xx DB1 yy DB23 zz")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, []int{3, 6}, matches[0])

	matches, err = s.FindAllIndex(re, "nothing here")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestScannerSubmatch(t *testing.T) {
	s := New(time.Second)
	re := regexp.MustCompile(`(UDT|FB|DB)!`)

	matches, err := s.FindAllSubmatchIndex(re, "DB!x FB!y")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "DB", "DB!x FB!y"[matches[0][2]:matches[0][3]])

	m, err := s.FindSubmatchIndex(re, "zzUDT!zz")
	require.NoError(t, err)
	require.Equal(t, "UDT", "zzUDT!zz"[m[2]:m[3]])

	m, err = s.FindSubmatchIndex(re, "none")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestScannerDefaultTimeout(t *testing.T) {
	require.Equal(t, DefaultTimeout, New(0).timeout)
	require.Equal(t, DefaultTimeout, New(-time.Second).timeout)
	require.Equal(t, time.Minute, New(time.Minute).timeout)
}
