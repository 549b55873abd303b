package variation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

func writeModule(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".js"), []byte(src), 0o644))
}

const incrementingModule = `
var counter = 0;
function init(options, mode) {}
function variate(oid, tag, value, ctx) {
  if (ctx.recordContext.value === undefined) {
    ctx.recordContext.value = parseInt(value, 10);
  } else {
    ctx.recordContext.value = ctx.recordContext.value + 1;
  }
  return [oid, tag, String(ctx.recordContext.value)];
}
function shutdown(options, mode) {}
`

const dropModule = `
function init(options, mode) {}
function variate(oid, tag, value, ctx) {
  ctx.drop();
}
function shutdown(options, mode) {}
`

func TestLoadDirAndVariateIncrementsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "numeric", incrementingModule)

	h := NewHost()
	require.NoError(t, h.LoadDir(dir, nil))

	ctx := &record.Context{DataFile: "x.snmprec", OrigOID: "1.3.6.1.4.1.1.0"}
	v1, err := record.EvaluateValue("1.3.6.1.4.1.1.0", "2:numeric", "10", h, ctx)
	require.NoError(t, err)
	require.Equal(t, 10, v1.Data)

	v2, err := record.EvaluateValue("1.3.6.1.4.1.1.0", "2:numeric", "10", h, ctx)
	require.NoError(t, err)
	require.Equal(t, 11, v2.Data)

	v3, err := record.EvaluateValue("1.3.6.1.4.1.1.0", "2:numeric", "10", h, ctx)
	require.NoError(t, err)
	require.Equal(t, 12, v3.Data)
}

func TestVariateDropYieldsNoDataNotification(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "vanish", dropModule)

	h := NewHost()
	require.NoError(t, h.LoadDir(dir, nil))

	ctx := &record.Context{DataFile: "x.snmprec"}
	_, err := record.EvaluateValue("1.3.6.1.4.1.2.0", "4:vanish", "x", h, ctx)
	require.True(t, snmperr.Dropped(err))
}

func TestLoadDirHonorsAliasOverrideAndSkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "numeric", incrementingModule)

	h := NewHost()
	require.NoError(t, h.LoadDir(dir, []string{"numeric=counter1:5"}))

	_, ok := h.Lookup("counter1")
	require.True(t, ok)
	_, ok = h.Lookup("numeric")
	require.False(t, ok)
}
