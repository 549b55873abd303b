package record

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

var errBadHex = snmperr.ErrBadValue

// Value is the materialized result of decoding a record's (tag, rawValue)
// pair: an ASN.1 BER tag and the Go value gosnmp expects for that tag when
// building an SnmpPDU.
type Value struct {
	Type gosnmp.Asn1BER
	Data interface{}
}

// Exception constructs the per-varbind v2c exception values spec.md's
// GLOSSARY names (noSuchObject, noSuchInstance, endOfMib), which gosnmp
// represents as ordinary BER tags carrying no payload.
func Exception(t gosnmp.Asn1BER) *Value { return &Value{Type: t} }

var (
	NoSuchObject   = gosnmp.NoSuchObject
	NoSuchInstance = gosnmp.NoSuchInstance
	EndOfMibView   = gosnmp.EndOfMibView
)

// decodeRawValue maps the numeric SNMP type codes the .snmprec grammar uses
// (the BER tag value, decimal) to the decoded Go representation to produce.
// The grammar additionally allows an 'x' suffix on the tag meaning "the
// VALUE field is lowercase hex bytes"; the caller strips the suffix and
// passes hexEncoded, and the hex decoding happens here.
func decodeRawValue(ber gosnmp.Asn1BER, raw string, hexEncoded bool) (interface{}, error) {
	if hexEncoded {
		b, err := hex.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: hex decode: %v", errBadHex, err)
		}
		switch ber {
		case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
			return bytesToUint(b), nil
		case gosnmp.Counter64:
			return bytesToUint64(b), nil
		default:
			return string(b), nil
		}
	}

	switch ber {
	case gosnmp.Integer:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return nil, err
		}
		return uint32(n), nil
	case gosnmp.Counter64:
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case gosnmp.OctetString, gosnmp.Opaque, gosnmp.BitString, gosnmp.NsapAddress:
		return raw, nil
	case gosnmp.ObjectIdentifier:
		return Canonical(raw), nil
	case gosnmp.IPAddress:
		ip := net.ParseIP(strings.TrimSpace(raw))
		if ip == nil {
			return nil, fmt.Errorf("invalid ip address %q", raw)
		}
		return ip.String(), nil
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported tag code %d", ber)
	}
}

func bytesToUint(b []byte) uint32 {
	var n uint32
	for _, c := range b {
		n = n<<8 | uint32(c)
	}
	return n
}

func bytesToUint64(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}
