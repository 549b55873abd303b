// Package variation implements the variation module host (C7): loading
// external modules and invoking their variate() callback per request.
// spec.md §9 names this one of the patterns needing re-architecture for a
// compiled target and suggests "an in-process embedded scripting
// interpreter" as one option; this host picks github.com/dop251/goja,
// the embedded ECMAScript interpreter carried in the example pack's
// dependency set, and gives each loaded module its own goja.Runtime so
// modules never have to be reentrant (spec.md §5).
package variation

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/gosnmp/gosnmp"

	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

func intToBER(n int) gosnmp.Asn1BER { return gosnmp.Asn1BER(n) }

// Mode mirrors the "mode" string a module's init/shutdown receive, always
// "variating" for this responder (spec.md §4.7).
const ModeVariating = "variating"

// module is one loaded .js file with its own interpreter and context
// state, keyed by the alias requests address it under.
type module struct {
	alias   string
	path    string
	options string
	vm      *goja.Runtime

	variateFn goja.Callable

	// agentContexts and recordContexts are the two per-module scratch
	// dictionaries spec.md §4.7 describes, keyed by data-file path (and,
	// for recordContexts, further by OID within that file). The host
	// auto-creates missing sub-maps on first access.
	agentContexts  map[string]map[string]interface{}
	recordContexts map[string]map[string]map[string]interface{}
}

// Host loads and dispatches to variation modules. It implements
// record.ModuleSet so the lookup/pipeline packages can pass it directly
// to record.Evaluate.
type Host struct {
	modules map[string]*module
}

// NewHost constructs an empty host.
func NewHost() *Host {
	return &Host{modules: make(map[string]*module)}
}

// LoadDir scans dir for module files (extension ".js") and loads each
// under its base name, unless an override alias[:args] was supplied via
// optionSpecs (the --variation-module-options flag, formatted
// "mod[=alias]:args"). Duplicate aliases are logged and skipped, per
// spec.md §4.7.
func (h *Host) LoadDir(dir string, optionSpecs []string) error {
	aliasOptions, aliasOverride := parseOptionSpecs(optionSpecs)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("variation: scan %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".js" {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".js")
		alias := base
		if override, ok := aliasOverride[base]; ok {
			alias = override
		}
		if _, exists := h.modules[alias]; exists {
			log.Printf("variation: duplicate alias %q for %s, skipping", alias, e.Name())
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := h.load(alias, path, aliasOptions[alias]); err != nil {
			log.Printf("variation: failed to load %s as %q: %v", path, alias, err)
			continue
		}
	}
	return nil
}

// parseOptionSpecs parses repeated --variation-module-options values of
// the form "mod[=alias]:args" into per-alias args and a base->alias
// override map.
func parseOptionSpecs(specs []string) (args map[string]string, override map[string]string) {
	args = make(map[string]string)
	override = make(map[string]string)
	for _, spec := range specs {
		name, rest, found := strings.Cut(spec, ":")
		if !found {
			continue
		}
		base, alias, hasAlias := strings.Cut(name, "=")
		if !hasAlias {
			alias = base
		}
		override[base] = alias
		args[alias] = rest
	}
	return args, override
}

func (h *Host) load(alias, path, options string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	vm := goja.New()
	if _, err := vm.RunScript(path, string(src)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}

	m := &module{
		alias:          alias,
		path:           path,
		options:        options,
		vm:             vm,
		agentContexts:  make(map[string]map[string]interface{}),
		recordContexts: make(map[string]map[string]map[string]interface{}),
	}

	if initFn, ok := goja.AssertFunction(vm.Get("init")); ok {
		if _, err := initFn(goja.Undefined(), vm.ToValue(options), vm.ToValue(ModeVariating)); err != nil {
			log.Printf("variation: init() failed for %q: %v", alias, err)
		}
	}

	variateFn, ok := goja.AssertFunction(vm.Get("variate"))
	if !ok {
		return fmt.Errorf("module %q does not define variate()", alias)
	}
	m.variateFn = variateFn

	h.modules[alias] = m
	return nil
}

// Lookup implements record.ModuleSet.
func (h *Host) Lookup(alias string) (record.Module, bool) {
	m, ok := h.modules[alias]
	if !ok {
		return nil, false
	}
	return m, true
}

// Shutdown calls shutdown() on every loaded module, per spec.md §4.8's
// requirement that process shutdown triggers it for every module.
func (h *Host) Shutdown() {
	for alias, m := range h.modules {
		shutdownFn, ok := goja.AssertFunction(m.vm.Get("shutdown"))
		if !ok {
			continue
		}
		if _, err := shutdownFn(goja.Undefined(), m.vm.ToValue(m.options), m.vm.ToValue(ModeVariating)); err != nil {
			log.Printf("variation: shutdown() failed for %q: %v", alias, err)
		}
	}
}

// dropSignal is the sentinel goja panics with when a script calls
// ctx.drop(), caught and translated to snmperr.ErrNoData by Variate.
type dropSignal struct{}

// Variate implements record.Module: builds the script-visible ctx object,
// calls variate(oid, tag, value, ctx), and decodes its return into a
// record.Value. A script calling ctx.drop() aborts with snmperr.ErrNoData.
func (m *module) Variate(oid, tag, value string, ctx *record.Context) (result *record.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(dropSignal); ok {
				err = fmt.Errorf("%w", snmperr.ErrNoData)
				return
			}
			panic(r)
		}
	}()

	agentCtx := m.agentContextFor(ctx.DataFile)
	recordCtx := m.recordContextFor(ctx.DataFile, oid)

	scriptCtx := m.vm.NewObject()
	scriptCtx.Set("origOid", ctx.OrigOID)
	scriptCtx.Set("origValue", ctx.OrigValue)
	scriptCtx.Set("dataFile", ctx.DataFile)
	scriptCtx.Set("subtreeFlag", ctx.SubtreeFlag)
	scriptCtx.Set("exactMatch", ctx.ExactMatch)
	scriptCtx.Set("errorStatus", ctx.ErrorStatus)
	scriptCtx.Set("varsTotal", ctx.VarsTotal)
	scriptCtx.Set("varsRemaining", ctx.VarsRemaining)
	scriptCtx.Set("nextFlag", ctx.NextFlag)
	scriptCtx.Set("setFlag", ctx.SetFlag)
	scriptCtx.Set("args", ctx.Extension["args"])
	if ctx.SetFlag {
		scriptCtx.Set("hexValue", ctx.Extension["hexvalue"])
		scriptCtx.Set("hexTag", ctx.Extension["hextag"])
	}
	scriptCtx.Set("agentContext", m.vm.ToValue(agentCtx))
	scriptCtx.Set("recordContext", m.vm.ToValue(recordCtx))
	scriptCtx.Set("drop", func(goja.FunctionCall) goja.Value {
		panic(dropSignal{})
	})

	ret, callErr := m.variateFn(goja.Undefined(), m.vm.ToValue(oid), m.vm.ToValue(tag), m.vm.ToValue(value), scriptCtx)
	if callErr != nil {
		return nil, fmt.Errorf("variation module %q: %w", m.alias, callErr)
	}

	return decodeReturn(ret)
}

func (m *module) agentContextFor(dataFile string) map[string]interface{} {
	c, ok := m.agentContexts[dataFile]
	if !ok {
		c = make(map[string]interface{})
		m.agentContexts[dataFile] = c
	}
	return c
}

func (m *module) recordContextFor(dataFile, oid string) map[string]interface{} {
	byFile, ok := m.recordContexts[dataFile]
	if !ok {
		byFile = make(map[string]map[string]interface{})
		m.recordContexts[dataFile] = byFile
	}
	c, ok := byFile[oid]
	if !ok {
		c = make(map[string]interface{})
		byFile[oid] = c
	}
	return c
}

// decodeReturn converts a script's [oid, tag, value] return array into a
// record.Value. The script is expected to return the same (tag, value)
// shape the grammar uses, so the numeric tag still selects the decoded
// Go type.
func decodeReturn(v goja.Value) (*record.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	arr, ok := v.Export().([]interface{})
	if !ok || len(arr) < 3 {
		return nil, fmt.Errorf("variation module return value must be [oid, tag, value]")
	}
	tagStr := fmt.Sprint(arr[1])
	valueStr := fmt.Sprint(arr[2])

	// ExactMatch is forced true here: this is decoding a concrete value the
	// module just returned, not a lookup-redirect placeholder, so the
	// no-module short-circuit in record.EvaluateValue must not apply.
	_, val, err := record.Evaluate(fmt.Sprintf("%v|%s|%s", arr[0], tagStr, valueStr), nil, &record.Context{ExactMatch: true})
	if err != nil {
		_ = val
		ber, convErr := strconv.Atoi(strings.TrimSuffix(tagStr, "x"))
		if convErr != nil {
			return nil, err
		}
		return &record.Value{Type: intToBER(ber), Data: valueStr}, nil
	}
	return val, nil
}
