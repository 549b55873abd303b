package recindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmukherjee/snmprecsim/internal/recfile"
)

func writeData(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "device.snmprec")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleData = "1.3.6.1.2.1.1.1.0|4|Linux host\n" +
	"1.3.6.1.2.1.1.3.0|67|12345\n" +
	"1.3.6.1.2.1.2.2.1.2.1|4|eth0\n" +
	"1.3.6.1.2.1.2.2.1.2.2|4|eth1\n"

func TestBuildRejectsOutOfOrderOIDs(t *testing.T) {
	path := writeData(t, "1.3.6.1.2.1.1.3.0|67|1\n1.3.6.1.2.1.1.1.0|4|x\n")
	f, err := recfile.Open(path)
	require.NoError(t, err)
	_, err = Build(f)
	require.Error(t, err)
}

func TestBuildLookupAndNext(t *testing.T) {
	path := writeData(t, sampleData)
	f, err := recfile.Open(path)
	require.NoError(t, err)
	idx, err := Build(f)
	require.NoError(t, err)
	require.Equal(t, 4, idx.Len())

	e, ok := idx.Lookup("1.3.6.1.2.1.1.1.0")
	require.True(t, ok)
	require.Equal(t, int64(-1), e.PrevOffset)

	next, ok := idx.Next("1.3.6.1.2.1.1.1.0")
	require.True(t, ok)
	require.Equal(t, "1.3.6.1.2.1.1.3.0", next.OID)

	_, ok = idx.Next("1.3.6.1.2.1.2.2.1.2.2")
	require.False(t, ok)
}

func TestSubtreeFlagMarksSiblingRows(t *testing.T) {
	path := writeData(t, sampleData)
	f, err := recfile.Open(path)
	require.NoError(t, err)
	idx, err := Build(f)
	require.NoError(t, err)

	e1, _ := idx.Lookup("1.3.6.1.2.1.2.2.1.2.1")
	e2, _ := idx.Lookup("1.3.6.1.2.1.2.2.1.2.2")
	require.True(t, e1.SubtreeFlag)
	require.True(t, e2.SubtreeFlag)

	scalar, _ := idx.Lookup("1.3.6.1.2.1.1.1.0")
	require.False(t, scalar.SubtreeFlag)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := writeData(t, sampleData)
	f, err := recfile.Open(path)
	require.NoError(t, err)
	idx, err := Build(f)
	require.NoError(t, err)
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, idx.Len(), loaded.Len())

	e, ok := loaded.Lookup("1.3.6.1.2.1.2.2.1.2.1")
	require.True(t, ok)
	require.True(t, e.SubtreeFlag)
}

func TestStatTransitionsMissingFreshStale(t *testing.T) {
	path := writeData(t, sampleData)

	st, err := Stat(path)
	require.NoError(t, err)
	require.Equal(t, Missing, st)

	f, err := recfile.Open(path)
	require.NoError(t, err)
	idx, err := Build(f)
	require.NoError(t, err)
	require.NoError(t, idx.Save(path))

	st, err = Stat(path)
	require.NoError(t, err)
	require.Equal(t, Fresh, st)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sampleData+"1.3.6.1.2.1.2.2.1.2.3|4|eth2\n"), 0o644))

	st, err = Stat(path)
	require.NoError(t, err)
	require.Equal(t, Stale, st)
}

func TestValidateDetectsRecordCountChange(t *testing.T) {
	path := writeData(t, sampleData)
	f, err := recfile.Open(path)
	require.NoError(t, err)
	idx, err := Build(f)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(sampleData+"1.3.6.1.2.1.2.2.1.2.3|4|eth2\n"), 0o644))
	f2, err := recfile.Open(path)
	require.NoError(t, err)
	require.Error(t, Validate(f2, idx))
}
