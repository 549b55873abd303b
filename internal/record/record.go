// Package record implements the .snmprec grammar: parsing a record line
// into (oid, tag, value), decoding the value under its tag, and dispatching
// to a variation module when the tag carries one. It mirrors the teacher's
// internal/store/parser.go line-splitting approach, generalized to the
// full spec.md §4.1 tag syntax (numeric code, optional 'x' hex suffix,
// optional ':MODULE[,args]' variation dispatch).
package record

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

// Raw is a parsed, undecoded record line: the three pipe-delimited fields
// spec.md §4.1 names OID, TAG and VALUE.
type Raw struct {
	OID   string
	Tag   string
	Value string
}

// Parse splits a record line into its three fields. Blank lines and lines
// beginning with '#' are comments and return ok=false with a nil error,
// matching the teacher parser's handling of .snmprec comment lines.
func Parse(line string) (r Raw, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Raw{}, false, nil
	}
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return Raw{}, false, fmt.Errorf("%w: expected OID|TAG|VALUE, got %q", snmperr.ErrBadRecord, line)
	}
	return Raw{OID: Canonical(parts[0]), Tag: parts[1], Value: parts[2]}, true, nil
}

// ParsedTag is a record TAG field broken into its numeric BER code, whether
// the VALUE field is hex-encoded, and an optional variation dispatch.
type ParsedTag struct {
	BER        gosnmp.Asn1BER
	Hex        bool
	Module     string
	ModuleArgs string
}

// ParseTag decodes a TAG field of the form "<code>[x][:MODULE[,args]]".
func ParseTag(tag string) (ParsedTag, error) {
	var pt ParsedTag
	rest := tag

	if idx := strings.Index(rest, ":"); idx >= 0 {
		pt.Module = rest[idx+1:]
		rest = rest[:idx]
		if c := strings.IndexByte(pt.Module, ','); c >= 0 {
			pt.ModuleArgs = pt.Module[c+1:]
			pt.Module = pt.Module[:c]
		}
	}

	if strings.HasSuffix(rest, "x") {
		pt.Hex = true
		rest = strings.TrimSuffix(rest, "x")
	}

	code, err := strconv.Atoi(rest)
	if err != nil {
		return ParsedTag{}, fmt.Errorf("%w: bad tag code %q", snmperr.ErrBadRecord, rest)
	}
	pt.BER = gosnmp.Asn1BER(code)
	return pt, nil
}

// Context carries the per-lookup state a variation module's variate()
// callback can read and mutate. Field names follow spec.md §9's design
// note recommending an explicit struct over an untyped map, with an
// Extension bag for module-private scratch data (e.g. the hex-encoded
// SET payload variation modules receive in set mode).
type Context struct {
	OrigOID       string
	OrigValue     string
	DataFile      string
	SubtreeFlag   bool
	ExactMatch    bool
	ErrorStatus   int
	VarsTotal     int
	VarsRemaining int
	NextFlag      bool
	SetFlag       bool
	HexValue      bool

	// DataValidation, when set, short-circuits Evaluate to a parse-only
	// pass: no module is invoked, and a successful parse is the only
	// signal the caller wants.
	DataValidation bool

	// OIDOnly skips value decoding entirely for GETNEXT-style walks that
	// only need to confirm a record exists at this position.
	OIDOnly bool

	Extension map[string]interface{}
}

// Module is the subset of a loaded variation module's behavior the record
// evaluator needs. internal/variation implements it; record depends only
// on this interface to avoid an import cycle (variation, in turn, depends
// on record for Context and Value).
type Module interface {
	Variate(oid, tag, value string, ctx *Context) (*Value, error)
}

// ModuleSet resolves a module alias (the name after ':' in a TAG) to a
// loaded Module. internal/variation.Host implements this.
type ModuleSet interface {
	Lookup(alias string) (Module, bool)
}

// Evaluate decodes a full record line (oid|tag|value) against ctx, invoking
// a variation module if the tag names one. It returns the OID unchanged
// (grammar does not rewrite OIDs) and the decoded Value, or a Drop error
// (snmperr.ErrNoData) if a module vetoes the response.
func Evaluate(line string, mods ModuleSet, ctx *Context) (oid string, val *Value, err error) {
	raw, ok, err := Parse(line)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, fmt.Errorf("%w: empty or comment line", snmperr.ErrBadRecord)
	}
	val, err = EvaluateValue(raw.OID, raw.Tag, raw.Value, mods, ctx)
	return raw.OID, val, err
}

// EvaluateValue is Evaluate split into its three already-parsed fields, the
// form the index-driven lookup path uses once it already knows the OID.
func EvaluateValue(oid, tag, value string, mods ModuleSet, ctx *Context) (*Value, error) {
	pt, err := ParseTag(tag)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = &Context{}
	}
	if ctx.OrigOID == "" {
		ctx.OrigOID = oid
	}
	if ctx.OrigValue == "" {
		ctx.OrigValue = value
	}
	ctx.HexValue = pt.Hex

	if ctx.DataValidation {
		if pt.Module == "" {
			if _, err := decodeRawValue(pt.BER, value, pt.Hex); err != nil {
				return nil, fmt.Errorf("%w: %v", snmperr.ErrBadValue, err)
			}
		}
		return nil, nil
	}

	if pt.Module == "" {
		if ctx.OIDOnly {
			return &Value{Type: pt.BER}, nil
		}
		// spec.md §4.1: a plain record (no module) answers a GET that landed
		// on it as an exact match or a confirmed subtree redirect
		// (ctx.SubtreeFlag), and any GETNEXT that reached it. An inexact GET
		// that is neither — the lookup only found a nearer-greater neighbor
		// with nothing actually covering the requested OID — and a SET with
		// no module to accept it both mean "there is nothing here" rather
		// than "return this unrelated record's value under the requested OID."
		if ctx.SetFlag || (!ctx.ExactMatch && !ctx.SubtreeFlag && !ctx.NextFlag) {
			return Exception(NoSuchInstance), nil
		}
		data, err := decodeRawValue(pt.BER, value, pt.Hex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", snmperr.ErrBadValue, err)
		}
		return &Value{Type: pt.BER, Data: data}, nil
	}

	if mods == nil {
		return nil, fmt.Errorf("%w: %s", snmperr.ErrUnknownVariation, pt.Module)
	}
	mod, found := mods.Lookup(pt.Module)
	if !found {
		return nil, fmt.Errorf("%w: %s", snmperr.ErrUnknownVariation, pt.Module)
	}

	if ctx.Extension == nil {
		ctx.Extension = make(map[string]interface{})
	}
	if ctx.SetFlag {
		ctx.Extension["hextag"] = strconv.Itoa(int(pt.BER))
		ctx.Extension["hexvalue"] = hex.EncodeToString([]byte(value))
	}
	ctx.Extension["args"] = pt.ModuleArgs

	result, err := mod.Variate(oid, strconv.Itoa(int(pt.BER)), value, ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w", snmperr.ErrNoData)
	}
	return result, nil
}
