package record

import (
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/require"

	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

func TestParseSplitsThreeFields(t *testing.T) {
	r, ok, err := Parse("1.3.6.1.2.1.1.1.0|4|Linux test-host")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.3.6.1.2.1.1.1.0", r.OID)
	require.Equal(t, "4", r.Tag)
	require.Equal(t, "Linux test-host", r.Value)
}

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	for _, line := range []string{"", "   ", "# a comment", "#no space"} {
		_, ok, err := Parse(line)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, _, err := Parse("1.3.6.1.2.1.1.1.0|4")
	require.ErrorIs(t, err, snmperr.ErrBadRecord)
}

func TestParseTagDecodesHexSuffixAndModule(t *testing.T) {
	pt, err := ParseTag("4x:sysuptime,1,60")
	require.NoError(t, err)
	require.Equal(t, gosnmp.Asn1BER(4), pt.BER)
	require.True(t, pt.Hex)
	require.Equal(t, "sysuptime", pt.Module)
	require.Equal(t, "1,60", pt.ModuleArgs)
}

func TestParseTagPlainNumericCode(t *testing.T) {
	pt, err := ParseTag("2")
	require.NoError(t, err)
	require.Equal(t, gosnmp.Asn1BER(2), pt.BER)
	require.False(t, pt.Hex)
	require.Equal(t, "", pt.Module)
}

func TestEvaluateValueDecodesIntegerWithoutModule(t *testing.T) {
	v, err := EvaluateValue("1.3.6.1.2.1.1.7.0", "2", "72", nil, &Context{ExactMatch: true})
	require.NoError(t, err)
	require.Equal(t, gosnmp.Integer, v.Type)
	require.Equal(t, 72, v.Data)
}

func TestEvaluateValueDecodesHexOctetString(t *testing.T) {
	v, err := EvaluateValue("1.3.6.1.2.1.1.1.0", "4x", "6c696e7578", nil, &Context{ExactMatch: true})
	require.NoError(t, err)
	require.Equal(t, gosnmp.OctetString, v.Type)
	require.Equal(t, "linux", v.Data)
}

func TestEvaluateValueSubtreeRedirectWithoutModuleDecodes(t *testing.T) {
	// A confirmed subtree redirect (SubtreeFlag set by the lookup layer
	// after matching a prefix) still answers with the base record's real
	// value even though it is not an exact match on the requested OID.
	v, err := EvaluateValue("1.3.6.1.4.1.9999", "4", "base-value", nil, &Context{SubtreeFlag: true})
	require.NoError(t, err)
	require.Equal(t, gosnmp.OctetString, v.Type)
	require.Equal(t, "base-value", v.Data)
}

func TestEvaluateValueInexactNonSubtreeMatchYieldsNoSuchInstance(t *testing.T) {
	// The lookup layer located a nearer-greater, unrelated record: no
	// module, not an exact match, and not a confirmed subtree redirect.
	// Returning that record's value under the requested OID would be
	// wrong, so this must short-circuit to noSuchInstance.
	v, err := EvaluateValue("1.3.6.1.2.1.1.2.0", "2", "99", nil, &Context{})
	require.NoError(t, err)
	require.Equal(t, NoSuchInstance, v.Type)
	require.Nil(t, v.Data)
}

func TestEvaluateValueSetWithoutModuleYieldsNoSuchInstance(t *testing.T) {
	// A plain record with no module cannot accept a SET.
	v, err := EvaluateValue("1.3.6.1.2.1.1.7.0", "2", "72", nil, &Context{ExactMatch: true, SetFlag: true})
	require.NoError(t, err)
	require.Equal(t, NoSuchInstance, v.Type)
	require.Nil(t, v.Data)
}

func TestEvaluateValueDataValidationModeDoesNotDecodeOrInvokeModule(t *testing.T) {
	v, err := EvaluateValue("1.3.6.1.2.1.1.1.0", "2", "not-an-int", nil, &Context{DataValidation: true})
	require.Error(t, err)
	v, err = EvaluateValue("1.3.6.1.2.1.1.1.0", "2", "72", nil, &Context{DataValidation: true})
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestEvaluateValueUnknownModuleErrors(t *testing.T) {
	_, err := EvaluateValue("1.3.6.1.2.1.1.1.0", "4:nosuchmodule", "x", nil, &Context{})
	require.ErrorIs(t, err, snmperr.ErrUnknownVariation)
}

type fakeModule struct {
	fn func(oid, tag, value string, ctx *Context) (*Value, error)
}

func (f fakeModule) Variate(oid, tag, value string, ctx *Context) (*Value, error) {
	return f.fn(oid, tag, value, ctx)
}

type fakeModuleSet map[string]Module

func (s fakeModuleSet) Lookup(alias string) (Module, bool) {
	m, ok := s[alias]
	return m, ok
}

func TestEvaluateValueDispatchesToModule(t *testing.T) {
	mods := fakeModuleSet{
		"double": fakeModule{fn: func(oid, tag, value string, ctx *Context) (*Value, error) {
			return &Value{Type: gosnmp.Integer, Data: 84}, nil
		}},
	}
	v, err := EvaluateValue("1.3.6.1.2.1.1.7.0", "2:double", "42", mods, &Context{})
	require.NoError(t, err)
	require.Equal(t, 84, v.Data)
}

func TestEvaluateValueModuleDropYieldsNoData(t *testing.T) {
	mods := fakeModuleSet{
		"vanish": fakeModule{fn: func(oid, tag, value string, ctx *Context) (*Value, error) {
			return nil, nil
		}},
	}
	_, err := EvaluateValue("1.3.6.1.2.1.1.7.0", "2:vanish", "42", mods, &Context{})
	require.True(t, snmperr.Dropped(err))
	require.True(t, errors.Is(err, snmperr.ErrNoData))
}

func TestEvaluateValueSetModePopulatesHexExtension(t *testing.T) {
	var gotHexValue, gotHexTag string
	mods := fakeModuleSet{
		"echo": fakeModule{fn: func(oid, tag, value string, ctx *Context) (*Value, error) {
			gotHexValue = ctx.Extension["hexvalue"].(string)
			gotHexTag = ctx.Extension["hextag"].(string)
			return &Value{Type: gosnmp.OctetString, Data: value}, nil
		}},
	}
	_, err := EvaluateValue("1.3.6.1.2.1.1.1.0", "4:echo", "hi", mods, &Context{SetFlag: true})
	require.NoError(t, err)
	require.Equal(t, "6869", gotHexValue)
	require.Equal(t, "4", gotHexTag)
}
