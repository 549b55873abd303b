package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/recfile"
	"github.com/dmukherjee/snmprecsim/internal/recindex"
)

func openFixture(t *testing.T, content string) (*recfile.File, *recindex.Index) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "public.snmprec")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := recfile.Open(path)
	require.NoError(t, err)
	idx, err := recindex.Build(f)
	require.NoError(t, err)
	return f, idx
}

const scenario1 = "1.3.6.1.2.1.1.1.0|4|Agent One\n1.3.6.1.2.1.1.3.0|67|12345\n"

func TestExactGetReturnsDecodedValue(t *testing.T) {
	f, idx := openFixture(t, scenario1)
	resp, err := ProcessVarBinds(f, idx, nil, []VarBind{{OID: "1.3.6.1.2.1.1.1.0"}}, RequestContext{})
	require.NoError(t, err)
	require.Len(t, resp, 1)
	require.Equal(t, "Agent One", resp[0].Value.Data)
}

func TestExactGetOnMissingOIDReturnsNoSuchInstance(t *testing.T) {
	f, idx := openFixture(t, scenario1)
	resp, err := ProcessVarBinds(f, idx, nil, []VarBind{{OID: "1.3.6.1.2.1.1.99.0"}}, RequestContext{})
	require.NoError(t, err)
	require.Equal(t, record.NoSuchInstance, resp[0].Value.Type)
}

func TestGetNextWalksToNextRecordThenEndOfMib(t *testing.T) {
	f, idx := openFixture(t, scenario1)

	resp, err := ProcessVarBinds(f, idx, nil, []VarBind{{OID: "1.3.6.1.2.1.1.1.0"}}, RequestContext{NextFlag: true})
	require.NoError(t, err)
	require.Equal(t, "1.3.6.1.2.1.1.3.0", resp[0].OID)
	require.EqualValues(t, 12345, resp[0].Value.Data)

	resp, err = ProcessVarBinds(f, idx, nil, []VarBind{{OID: "1.3.6.1.2.1.1.3.0"}}, RequestContext{NextFlag: true})
	require.NoError(t, err)
	require.Equal(t, record.EndOfMibView, resp[0].Value.Type)
}

func TestGetNextFromZeroVisitsFirstRecord(t *testing.T) {
	f, idx := openFixture(t, scenario1)
	resp, err := ProcessVarBinds(f, idx, nil, []VarBind{{OID: "0.0"}}, RequestContext{NextFlag: true})
	require.NoError(t, err)
	require.Equal(t, "1.3.6.1.2.1.1.1.0", resp[0].OID)
}

func TestSubtreeCoverageForInexactGet(t *testing.T) {
	f, idx := openFixture(t, "1.3.6.1.4.1.9999|4|base value\n1.3.6.1.4.1.10000|4|sibling\n")
	resp, err := ProcessVarBinds(f, idx, nil, []VarBind{{OID: "1.3.6.1.4.1.9999.5"}}, RequestContext{})
	require.NoError(t, err)
	require.Equal(t, "base value", resp[0].Value.Data)
}

func TestInexactNonSubtreeGetReturnsNoSuchInstanceUnderRequestedOID(t *testing.T) {
	// "1.3.6.1.2.1.1.2.0" is genuinely absent and not covered by either
	// neighboring record's subtree: locate() rounds up to
	// 1.3.6.1.2.1.1.3.0, but that record is not a prefix match, so the
	// response must be noSuchInstance at the requested OID, not
	// 1.3.6.1.2.1.1.3.0's real value under the wrong OID.
	f, idx := openFixture(t, scenario1)
	resp, err := ProcessVarBinds(f, idx, nil, []VarBind{{OID: "1.3.6.1.2.1.1.2.0"}}, RequestContext{})
	require.NoError(t, err)
	require.Equal(t, "1.3.6.1.2.1.1.2.0", resp[0].OID)
	require.Equal(t, record.NoSuchInstance, resp[0].Value.Type)
}

func TestSetWithoutModuleReturnsNoSuchInstance(t *testing.T) {
	f, idx := openFixture(t, scenario1)
	resp, err := ProcessVarBinds(f, idx, nil, []VarBind{{OID: "1.3.6.1.2.1.1.1.0"}}, RequestContext{SetFlag: true})
	require.NoError(t, err)
	require.Equal(t, record.NoSuchInstance, resp[0].Value.Type)
}
