// Package config implements the CLI surface described in spec.md §6:
// repeatable flags via a stringSliceFlag (the idiom the teacher's
// cmd/snmpsim/main.go uses), --args-from-file token splicing, and the v3
// option set. At most one v3 engine block is built: the --v3-* options are
// plain single-value flags, so a repeated one keeps its last value and
// their order relative to --v3-engine-id has no effect. Extra positional arguments are always a fatal ConfigError,
// resolving spec.md §9's third open question in favor of strictness.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dmukherjee/snmprecsim/internal/snmperr"
	"github.com/dmukherjee/snmprecsim/internal/v3"
)

// stringSliceFlag accumulates repeated occurrences of one flag, the
// pattern the teacher's cmd/snmpsim/main.go uses for --trap-target et al.
type stringSliceFlag []string

func (f *stringSliceFlag) String() string { return strings.Join(*f, ",") }
func (f *stringSliceFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// V3Engine is the `--v3-engine-id <id>` block together with the other
// --v3-* options, wherever they appear on the command line. Parse yields
// at most one.
type V3Engine struct {
	Config v3.Config
}

// Config is the fully parsed CLI surface.
type Config struct {
	DataDirs            []string
	CacheDir            string
	ForceIndexRebuild   bool
	ValidateData        bool
	VariationModuleDirs []string
	VariationModuleOpts []string

	UDPv4Endpoints   []string
	UDPv6Endpoints   []string
	UnixEndpoints    []string
	TransportIDOffset int

	MaxVarBinds int

	V2CArch bool
	Engines []V3Engine
}

// Parse parses argv (typically os.Args[1:]) into a Config, first splicing
// in the contents of any --args-from-file token stream. Extra positional
// arguments are always rejected with snmperr.ErrConfig.
func Parse(argv []string) (Config, error) {
	argv, err := spliceArgsFromFile(argv)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("snmprecsim", flag.ContinueOnError)

	cacheDir := fs.String("cache-dir", "", "location for rebuilt indices")
	forceRebuild := fs.Bool("force-index-rebuild", false, "ignore existing indices")
	validate := fs.Bool("validate-data", false, "full-scan verification of each index at startup")
	transportIDOffset := fs.Int("transport-id-offset", 0, "starting value for the per-family transport-domain counter")
	maxVarBinds := fs.Int("max-varbinds", 64, "cap used by the GETBULK expansion")
	v2cArch := fs.Bool("v2c-arch", true, "community selects agent (v2c/v1 arch); false selects the v3 USM engine")

	var dataDirs, variationDirs, variationOpts stringSliceFlag
	var udpv4, udpv6, unixSocks stringSliceFlag
	fs.Var(&dataDirs, "data-dir", "data directory root, scanned recursively (repeatable)")
	fs.Var(&variationDirs, "variation-modules-dir", "variation module directory (repeatable)")
	fs.Var(&variationOpts, "variation-module-options", "mod[=alias]:args (repeatable)")
	fs.Var(&udpv4, "agent-udpv4-endpoint", "ip:port (repeatable)")
	fs.Var(&udpv6, "agent-udpv6-endpoint", "[addr]:port (repeatable)")
	fs.Var(&unixSocks, "agent-unix-endpoint", "unix socket path (repeatable)")

	v3EngineID := fs.String("v3-engine-id", "", "SNMPv3 authoritative engine ID; enables the single v3 engine block")
	v3ContextEngineID := fs.String("v3-context-engine-id", "", "SNMPv3 context engine ID for this block")
	v3User := fs.String("v3-user", "", "SNMPv3 username for this block")
	v3AuthProto := fs.String("v3-auth-proto", "", "SNMPv3 auth protocol for this block")
	v3AuthKey := fs.String("v3-auth-key", "", "SNMPv3 auth passphrase for this block")
	v3PrivProto := fs.String("v3-priv-proto", "", "SNMPv3 priv protocol for this block")
	v3PrivKey := fs.String("v3-priv-key", "", "SNMPv3 privacy passphrase for this block")

	if err := fs.Parse(argv); err != nil {
		return Config{}, fmt.Errorf("%w: %v", snmperr.ErrConfig, err)
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected extra arguments: %v", snmperr.ErrConfig, fs.Args())
	}

	cfg := Config{
		DataDirs:            dataDirs,
		CacheDir:            *cacheDir,
		ForceIndexRebuild:   *forceRebuild,
		ValidateData:        *validate,
		VariationModuleDirs: variationDirs,
		VariationModuleOpts: variationOpts,
		UDPv4Endpoints:      udpv4,
		UDPv6Endpoints:      udpv6,
		UnixEndpoints:       unixSocks,
		TransportIDOffset:   *transportIDOffset,
		MaxVarBinds:         *maxVarBinds,
		V2CArch:             *v2cArch,
	}

	if len(cfg.DataDirs) == 0 {
		return Config{}, fmt.Errorf("%w: at least one --data-dir is required", snmperr.ErrConfig)
	}

	if *v3EngineID != "" {
		engineID, err := v3.ParseEngineID(*v3EngineID)
		if err != nil {
			return Config{}, fmt.Errorf("%w: --v3-engine-id: %v", snmperr.ErrConfig, err)
		}
		if *v3ContextEngineID != "" {
			engineID, err = v3.ParseEngineID(*v3ContextEngineID)
			if err != nil {
				return Config{}, fmt.Errorf("%w: --v3-context-engine-id: %v", snmperr.ErrConfig, err)
			}
		}
		engineCfg := v3.Config{
			Enabled:  true,
			EngineID: engineID,
			Username: *v3User,
			Auth:     v3.AuthProtocol(*v3AuthProto),
			AuthKey:  *v3AuthKey,
			Priv:     v3.PrivProtocol(*v3PrivProto),
			PrivKey:  *v3PrivKey,
		}
		if err := engineCfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("%w: %v", snmperr.ErrConfig, err)
		}
		cfg.Engines = append(cfg.Engines, V3Engine{Config: engineCfg})
	}

	return cfg, nil
}

// spliceArgsFromFile replaces every "--args-from-file <path>" occurrence
// with the whitespace-separated tokens read from that file, per spec.md
// §6. Splicing is applied once, left to right; a spliced file may not
// itself contain another --args-from-file (no recursive splicing).
func spliceArgsFromFile(argv []string) ([]string, error) {
	var out []string
	for i := 0; i < len(argv); i++ {
		if argv[i] != "--args-from-file" {
			out = append(out, argv[i])
			continue
		}
		if i+1 >= len(argv) {
			return nil, fmt.Errorf("%w: --args-from-file requires a path argument", snmperr.ErrConfig)
		}
		path := argv[i+1]
		i++
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: --args-from-file %s: %v", snmperr.ErrConfig, path, err)
		}
		out = append(out, strings.Fields(string(data))...)
	}
	return out, nil
}

// ParseTransportIDOffset is a small helper for CLI tools that accept the
// offset as a free-standing string flag.
func ParseTransportIDOffset(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad transport-id-offset %q", snmperr.ErrConfig, s)
	}
	return n, nil
}
