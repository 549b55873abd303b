// Command snmprecsim is the simulator daemon: it scans one or more
// --data-dir trees for .snmprec files, registers each as an agent in a
// selector.ContextTable, and serves SNMPv1/v2c/v3 requests against them
// over UDPv4, UDPv6, and Unix datagram sockets. Startup sequencing
// (parse flags, load modules, open listeners, wait on a signal) follows
// the teacher's cmd/snmpsim/main.go shape.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dmukherjee/snmprecsim/internal/config"
	"github.com/dmukherjee/snmprecsim/internal/metrics"
	"github.com/dmukherjee/snmprecsim/internal/pipeline"
	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/recfile"
	"github.com/dmukherjee/snmprecsim/internal/recindex"
	"github.com/dmukherjee/snmprecsim/internal/selector"
	"github.com/dmukherjee/snmprecsim/internal/store"
	"github.com/dmukherjee/snmprecsim/internal/transport"
	"github.com/dmukherjee/snmprecsim/internal/v3"
	"github.com/dmukherjee/snmprecsim/internal/variation"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("snmprecsim: %v", err)
	}

	metrics.Init()

	modules := variation.NewHost()
	for _, dir := range cfg.VariationModuleDirs {
		if err := modules.LoadDir(dir, cfg.VariationModuleOpts); err != nil {
			log.Fatalf("snmprecsim: loading variation modules from %s: %v", dir, err)
		}
	}
	defer modules.Shutdown()

	contextTable := selector.NewContextTable()
	agentPaths := make(map[string]string)
	for _, root := range cfg.DataDirs {
		if err := scanDataDir(root, contextTable, agentPaths); err != nil {
			log.Fatalf("snmprecsim: scanning %s: %v", root, err)
		}
	}
	log.Printf("snmprecsim: registered %d agents from %d data directories", len(agentPaths), len(cfg.DataDirs))

	cache := store.NewHandleCache(31, store.OpenOptions{
		CacheDir:     cfg.CacheDir,
		ForceRebuild: cfg.ForceIndexRebuild,
		Validate:     cfg.ValidateData,
	})

	var v3cfg *v3.Config
	var engineStates *v3.EngineStateStore
	var boots uint32
	if len(cfg.Engines) > 0 {
		v3cfg = &cfg.Engines[0].Config
		path := cfg.CacheDir
		if path == "" {
			path = "."
		}
		engineStates, err = v3.NewEngineStateStore(filepath.Join(path, "engine-state.json"))
		if err != nil {
			log.Fatalf("snmprecsim: opening engine state store: %v", err)
		}
		boots, err = engineStates.EnsureBoots(v3cfg.EngineID)
		if err != nil {
			log.Fatalf("snmprecsim: recording engine boot: %v", err)
		}
		log.Printf("snmprecsim: snmpv3 engine boot %d for user %q", boots, v3cfg.Username)
	}

	agents := &agentSource{cache: cache, modules: modules, paths: agentPaths}
	pl := pipeline.New(pipeline.Config{
		V2CArch:      cfg.V2CArch,
		MaxVarBinds:  cfg.MaxVarBinds,
		ContextTable: contextTable,
		V3:           v3cfg,
		EngineState:  engineStates,
		Boots:        boots,
	}, agents)

	endpoints := transport.PlanEndpoints(cfg.UDPv4Endpoints, cfg.UDPv6Endpoints, cfg.UnixEndpoints, cfg.TransportIDOffset)
	if len(endpoints) == 0 {
		log.Fatal("snmprecsim: no listener endpoints configured")
	}

	dispatcher := transport.NewDispatcher(func(ep transport.Endpoint, remoteAddr string, payload []byte) ([]byte, error) {
		return pl.HandleDatagram(pipeline.Endpoint{Family: ep.Family, TransportDotted: ep.Domain}, remoteAddr, payload)
	}, 256)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("snmprecsim: serving %d endpoints", len(endpoints))
	if err := dispatcher.Serve(ctx, endpoints); err != nil {
		log.Fatalf("snmprecsim: %v", err)
	}
	log.Print("snmprecsim: shut down")
}

// agentSource adapts store.HandleCache + variation.Host to
// pipeline.AgentSource: opening an agent means resolving its data-file
// path, fetching its cached (file, index) pair, and handing back the
// module host itself, since record.ModuleSet only needs Lookup.
type agentSource struct {
	cache   *store.HandleCache
	modules *variation.Host
	paths   map[string]string
}

func (a *agentSource) Open(agentID string) (*recfile.File, *recindex.Index, record.ModuleSet, error) {
	path, ok := a.paths[agentID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("snmprecsim: unknown agent %q", agentID)
	}
	rs, err := a.cache.Open(agentID, path)
	if err != nil {
		return nil, nil, nil, err
	}
	metrics.SetHandleCacheOpen(a.cache.Len())
	return rs.File(), rs.Index(), a.modules, nil
}

// scanDataDir walks root for .snmprec files and registers each one under
// an agent identifier derived from its path relative to root: extension
// stripped, separators normalized to '/', and a leading "self" component
// stripped, per spec.md §6's data-directory convention.
func scanDataDir(root string, table *selector.ContextTable, paths map[string]string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".snmprec") && !strings.HasSuffix(path, ".snmprec.gz") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		agentID := agentIDFromPath(rel)
		table.Register(agentID, agentID)
		paths[agentID] = path
		return nil
	})
}

func agentIDFromPath(rel string) string {
	rel = strings.TrimSuffix(rel, ".gz")
	rel = strings.TrimSuffix(rel, ".snmprec")
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "self/")
	if rel == "self" {
		rel = ""
	}
	return rel
}
