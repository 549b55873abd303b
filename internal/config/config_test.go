package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

func TestParseRequiresAtLeastOneDataDir(t *testing.T) {
	_, err := Parse([]string{})
	require.ErrorIs(t, err, snmperr.ErrConfig)
}

func TestParseRepeatableFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"--data-dir", "/a",
		"--data-dir", "/b",
		"--agent-udpv4-endpoint", "127.0.0.1:1161",
		"--agent-udpv4-endpoint", "127.0.0.1:1162",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"/a", "/b"}, cfg.DataDirs)
	require.Equal(t, []string{"127.0.0.1:1161", "127.0.0.1:1162"}, cfg.UDPv4Endpoints)
}

func TestParseRejectsExtraPositionalArgs(t *testing.T) {
	_, err := Parse([]string{"--data-dir", "/a", "extra-positional"})
	require.ErrorIs(t, err, snmperr.ErrConfig)
}

func TestSpliceArgsFromFileInjectsTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "args.txt")
	require.NoError(t, os.WriteFile(path, []byte("--data-dir /from-file\n--max-varbinds 128"), 0o644))

	cfg, err := Parse([]string{"--args-from-file", path})
	require.NoError(t, err)
	require.Equal(t, []string{"/from-file"}, cfg.DataDirs)
	require.Equal(t, 128, cfg.MaxVarBinds)
}

func TestParseV3EngineBlockValidates(t *testing.T) {
	_, err := Parse([]string{
		"--data-dir", "/a",
		"--v3-engine-id", "800012345",
		"--v3-auth-proto", "MD5",
		"--v3-auth-key", "authkey1",
	})
	require.ErrorIs(t, err, snmperr.ErrConfig) // missing username
}

func TestParseV3EngineBlockSucceedsWithUsername(t *testing.T) {
	cfg, err := Parse([]string{
		"--data-dir", "/a",
		"--v3-engine-id", "800012345",
		"--v3-user", "simuser",
	})
	require.NoError(t, err)
	require.Len(t, cfg.Engines, 1)
	require.Equal(t, "simuser", cfg.Engines[0].Config.Username)
}
