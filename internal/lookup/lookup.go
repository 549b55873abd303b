// Package lookup implements processVarBinds (C4): the per-varbind record
// location and refinement loop spec.md §4.4 describes, built on top of
// internal/recindex's exact/next queries and internal/record's grammar
// evaluator. The binary-search-rounds-up idiom this needs is already
// provided by recindex.Next, which in turn follows the teacher's
// sort.Search-based searchOIDPosition in internal/store/index_manager.go.
package lookup

import (
	"fmt"
	"log"

	"github.com/gosnmp/gosnmp"

	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/recfile"
	"github.com/dmukherjee/snmprecsim/internal/recindex"
	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

// VarBind is a request or response (OID, value) pair. Value is nil on the
// request side.
type VarBind struct {
	OID   string
	Value *record.Value
}

// RequestContext carries the per-request flags processVarBinds needs,
// mirroring spec.md §4.4's ctx: nextFlag for GETNEXT semantics, setFlag
// for writes, plus whatever the variation layer below it needs via the
// embedded record.Context.
type RequestContext struct {
	NextFlag bool
	SetFlag  bool
	record.Context
}

// maxRefinementLoops bounds the endOfMib-redirect re-loop in step 7 of
// spec.md §4.4 to the file's own record count, resolving spec.md §9's
// open question about unbounded pathological variation modules.
func maxRefinementLoops(idx *recindex.Index) int {
	n := idx.Len() + 1
	if n < 1 {
		n = 1
	}
	return n
}

// ProcessVarBinds runs every request varbind through the location and
// refinement algorithm and returns the response varbinds in the same
// order. mods resolves variation-module dispatch for C1; it may be nil
// if the record file uses no modules.
func ProcessVarBinds(f *recfile.File, idx *recindex.Index, mods record.ModuleSet, reqVarBinds []VarBind, ctx RequestContext) ([]VarBind, error) {
	total := len(reqVarBinds)
	resp := make([]VarBind, 0, total)

	for i, vb := range reqVarBinds {
		remaining := total - i - 1
		out, err := processOne(f, idx, mods, vb, ctx, total, remaining)
		if err != nil {
			if snmperr.Dropped(err) {
				return nil, err
			}
			return nil, err
		}
		resp = append(resp, out)
	}

	log.Printf("lookup: request var-binds: %v -> response var-binds: %v", reqVarBinds, resp)
	return resp, nil
}

func processOne(f *recfile.File, idx *recindex.Index, mods record.ModuleSet, vb VarBind, ctx RequestContext, total, remaining int) (VarBind, error) {
	defaultErrorStatus := record.NoSuchInstance
	if ctx.NextFlag {
		defaultErrorStatus = record.EndOfMibView
	}

	entry, exactMatch, found := locate(idx, vb.OID)
	subtreeFlag := found && entry.SubtreeFlag

	loops := maxRefinementLoops(idx)
	for iter := 0; ; iter++ {
		if iter >= loops {
			log.Printf("lookup: refinement loop exceeded %d iterations for %s, giving up", loops, vb.OID)
			found = false
			break
		}

		if !found {
			break
		}

		if exactMatch && ctx.NextFlag && !subtreeFlag {
			nextEntry, ok := advanceToNext(f, idx, entry)
			if !ok {
				found = false
				break
			}
			entry = nextEntry
			subtreeFlag = entry.SubtreeFlag
		} else if !exactMatch {
			if entry.PrevOffset >= 0 {
				prevLine, err := f.LineAt(entry.PrevOffset)
				if err == nil {
					prevRaw, ok, perr := record.Parse(prevLine)
					if perr == nil && ok && record.IsPrefix(prevRaw.OID, vb.OID) {
						prevEntry, pok := idx.Lookup(prevRaw.OID)
						if pok {
							entry = prevEntry
							subtreeFlag = true
						}
					}
				}
			}
		}

		line, err := f.LineAt(entry.Offset)
		if err != nil {
			found = false
			break
		}

		childCtx := ctx.Context
		childCtx.OrigOID = vb.OID
		if vb.Value != nil {
			childCtx.OrigValue = fmt.Sprint(vb.Value.Data)
		}
		childCtx.DataFile = f.Path()
		childCtx.SubtreeFlag = subtreeFlag
		childCtx.ExactMatch = exactMatch
		childCtx.ErrorStatus = int(defaultErrorStatus)
		childCtx.VarsTotal = total
		childCtx.VarsRemaining = remaining
		childCtx.NextFlag = ctx.NextFlag
		childCtx.SetFlag = ctx.SetFlag

		oid, val, eerr := record.Evaluate(line, mods, &childCtx)
		if eerr != nil {
			if snmperr.Dropped(eerr) {
				return VarBind{}, eerr
			}
			log.Printf("lookup: data error for %s: %v", vb.OID, eerr)
			found = false
			break
		}

		if val != nil && val.Type == record.EndOfMibView {
			exactMatch = true
			subtreeFlag = false
			e, ok := idx.Lookup(oid)
			if !ok {
				found = false
				break
			}
			entry = e
			continue
		}

		if val != nil && val.Type == record.NoSuchInstance {
			return VarBind{OID: vb.OID, Value: val}, nil
		}
		return VarBind{OID: oid, Value: val}, nil
	}

	return VarBind{OID: vb.OID, Value: record.Exception(defaultErrorStatus)}, nil
}

// locate performs step 2 of spec.md §4.4: exact index lookup, falling
// back to the nearest-greater entry (the binary search "rounds up").
func locate(idx *recindex.Index, oid string) (recindex.Entry, bool, bool) {
	if e, ok := idx.Lookup(oid); ok {
		return e, true, true
	}
	e, ok := idx.Next(oid)
	if !ok {
		return recindex.Entry{}, false, false
	}
	return e, false, true
}

// advanceToNext implements the exactMatch&&nextFlag&&!subtreeFlag branch:
// move to the following record and learn its subtree flag from the index.
func advanceToNext(f *recfile.File, idx *recindex.Index, entry recindex.Entry) (recindex.Entry, bool) {
	pos, ok := idx.IndexOf(entry.OID)
	if !ok {
		return recindex.Entry{}, false
	}
	return idx.EntryAt(pos + 1)
}
