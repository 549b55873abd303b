package recdiff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompareFilesIdentical(t *testing.T) {
	dir := t.TempDir()
	content := "1.3.6.1.2.1.1.1.0|4|hello\n1.3.6.1.2.1.1.2.0|2|1\n"
	left := writeFile(t, dir, "left.snmprec", content)
	right := writeFile(t, dir, "right.snmprec", content)

	res, err := CompareFiles(left, right)
	require.NoError(t, err)
	require.True(t, res.Identical())
	require.Equal(t, 2, res.LeftCount)
	require.Equal(t, 2, res.RightCount)
}

func TestCompareFilesDetectsAddedRemovedChanged(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "left.snmprec",
		"1.3.6.1.2.1.1.1.0|4|hello\n1.3.6.1.2.1.1.3.0|2|5\n")
	right := writeFile(t, dir, "right.snmprec",
		"1.3.6.1.2.1.1.1.0|4|goodbye\n1.3.6.1.2.1.1.4.0|2|7\n")

	res, err := CompareFiles(left, right)
	require.NoError(t, err)
	require.False(t, res.Identical())
	require.Len(t, res.Diffs, 3)

	byOID := make(map[string]Difference)
	for _, d := range res.Diffs {
		byOID[d.OID] = d
	}
	require.Equal(t, Changed, byOID["1.3.6.1.2.1.1.1.0"].Kind)
	require.Equal(t, "hello", byOID["1.3.6.1.2.1.1.1.0"].LeftValue)
	require.Equal(t, "goodbye", byOID["1.3.6.1.2.1.1.1.0"].RightValue)
	require.Equal(t, Removed, byOID["1.3.6.1.2.1.1.3.0"].Kind)
	require.Equal(t, Added, byOID["1.3.6.1.2.1.1.4.0"].Kind)
}

func TestCompareFilesOrdersDiffsByOID(t *testing.T) {
	dir := t.TempDir()
	left := writeFile(t, dir, "left.snmprec", "1.3.6.1.2.1.1.10.0|2|1\n")
	right := writeFile(t, dir, "right.snmprec", "1.3.6.1.2.1.1.2.0|2|1\n")

	res, err := CompareFiles(left, right)
	require.NoError(t, err)
	require.Len(t, res.Diffs, 2)
	require.Equal(t, "1.3.6.1.2.1.1.2.0", res.Diffs[0].OID)
	require.Equal(t, "1.3.6.1.2.1.1.10.0", res.Diffs[1].OID)
}
