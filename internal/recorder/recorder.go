// Package recorder builds a .snmprec record file by walking a live SNMP
// agent with repeated GETNEXT requests, adapted from the teacher's
// internal/recorder.Record. Where the teacher collected snmprecfmt.Entry
// values, this version emits record.Raw lines directly in the grammar
// internal/record and internal/recfile already understand, so a recorded
// snapshot can be fed straight back into the simulator.
package recorder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/dmukherjee/snmprecsim/internal/record"
)

// DefaultRoots mirrors the teacher's walk scope: the system, interface,
// ifX, host-resources, and enterprise subtrees most agents populate.
var DefaultRoots = []string{
	"1.3.6.1.2.1.1",
	"1.3.6.1.2.1.2.2",
	"1.3.6.1.2.1.31.1.1",
	"1.3.6.1.2.1.25",
	"1.3.6.1.4.1",
}

// Options configures one recording run.
type Options struct {
	Target  string
	Port    uint16
	Timeout time.Duration
	Retries int
	MaxOIDs int

	Roots   []string
	Exclude []string

	Community string

	V3User    string
	V3Auth    string
	V3AuthKey string
	V3Priv    string
	V3PrivKey string
}

// Record walks the target agent and returns the OIDs it discovered, sorted
// in ascending numeric order, ready to be written out as .snmprec lines.
func Record(opts Options) ([]record.Raw, error) {
	client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("recorder: connect: %w", err)
	}
	defer client.Conn.Close()

	roots := opts.Roots
	if len(roots) == 0 {
		roots = append([]string(nil), DefaultRoots...)
	}

	entries := make(map[string]record.Raw)
	var firstErr error
	for _, root := range roots {
		if opts.MaxOIDs > 0 && len(entries) >= opts.MaxOIDs {
			break
		}
		if err := walkRoot(client, strings.TrimPrefix(root, "."), opts.Exclude, opts.MaxOIDs, entries); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("recorder: root %s: %w", root, err)
		}
	}
	if len(entries) == 0 && firstErr != nil {
		return nil, firstErr
	}

	out := make([]record.Raw, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sortRaw(out)
	return out, nil
}

func sortRaw(entries []record.Raw) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && record.Less(entries[j].OID, entries[j-1].OID); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func walkRoot(client *gosnmp.GoSNMP, root string, excludes []string, maxOIDs int, entries map[string]record.Raw) error {
	current := root
	for {
		if maxOIDs > 0 && len(entries) >= maxOIDs {
			return nil
		}
		pkt, err := client.GetNext([]string{current})
		if err != nil {
			return fmt.Errorf("getnext %s: %w", current, err)
		}
		if pkt == nil || len(pkt.Variables) == 0 {
			return nil
		}

		pdu := pkt.Variables[0]
		if pdu.Type == gosnmp.EndOfMibView || pdu.Type == gosnmp.NoSuchObject || pdu.Type == gosnmp.NoSuchInstance {
			return nil
		}

		oid := strings.TrimPrefix(pdu.Name, ".")
		if !isInSubtree(oid, root) {
			return nil
		}
		current = oid
		if shouldExclude(oid, excludes) {
			continue
		}
		if _, exists := entries[oid]; exists {
			continue
		}

		raw, err := rawFromPDU(oid, pdu)
		if err != nil {
			return fmt.Errorf("convert %s: %w", oid, err)
		}
		entries[oid] = raw
	}
}

// rawFromPDU renders one walked variable into the OID|TAG|VALUE text line
// grammar, tagging with the numeric BER code record.ParseTag expects.
func rawFromPDU(oid string, pdu gosnmp.SnmpPDU) (record.Raw, error) {
	tag := strconv.Itoa(int(pdu.Type))
	var value string
	switch v := pdu.Value.(type) {
	case []byte:
		value = string(v)
	case string:
		value = v
	case int:
		value = strconv.Itoa(v)
	case int64:
		value = strconv.FormatInt(v, 10)
	case uint:
		value = strconv.FormatUint(uint64(v), 10)
	case uint64:
		value = strconv.FormatUint(v, 10)
	case nil:
		value = ""
	default:
		value = fmt.Sprintf("%v", v)
	}
	return record.Raw{OID: oid, Tag: tag, Value: value}, nil
}

func newClient(opts Options) (*gosnmp.GoSNMP, error) {
	target := opts.Target
	if target == "" {
		target = "127.0.0.1"
	}
	port := opts.Port
	if port == 0 {
		port = 161
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	if opts.Community != "" && opts.V3User != "" {
		return nil, fmt.Errorf("recorder: use either --community or --v3-user, not both")
	}

	if opts.V3User != "" {
		usm := &gosnmp.UsmSecurityParameters{UserName: opts.V3User}
		flags := gosnmp.NoAuthNoPriv

		auth := parseV3Auth(opts.V3Auth)
		if auth != gosnmp.NoAuth {
			if opts.V3AuthKey == "" {
				return nil, fmt.Errorf("recorder: v3 auth protocol set but --v3-auth-key is empty")
			}
			usm.AuthenticationProtocol = auth
			usm.AuthenticationPassphrase = opts.V3AuthKey
			flags = gosnmp.AuthNoPriv
		}

		priv := parseV3Priv(opts.V3Priv)
		if priv != gosnmp.NoPriv {
			if auth == gosnmp.NoAuth {
				return nil, fmt.Errorf("recorder: v3 privacy requires an auth protocol")
			}
			if opts.V3PrivKey == "" {
				return nil, fmt.Errorf("recorder: v3 privacy protocol set but --v3-priv-key is empty")
			}
			usm.PrivacyProtocol = priv
			usm.PrivacyPassphrase = opts.V3PrivKey
			flags = gosnmp.AuthPriv
		}

		return &gosnmp.GoSNMP{
			Target: target, Port: port, Version: gosnmp.Version3,
			Timeout: timeout, Retries: retries,
			SecurityModel: gosnmp.UserSecurityModel, MsgFlags: flags,
			SecurityParameters: usm,
		}, nil
	}

	if opts.Community == "" {
		return nil, fmt.Errorf("recorder: set either --community or --v3-user")
	}
	return &gosnmp.GoSNMP{
		Target: target, Port: port, Version: gosnmp.Version2c,
		Community: opts.Community, Timeout: timeout, Retries: retries,
	}, nil
}

func parseV3Auth(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return gosnmp.NoAuth
	case "MD5":
		return gosnmp.MD5
	case "SHA", "SHA1":
		return gosnmp.SHA
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func parseV3Priv(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return gosnmp.NoPriv
	case "DES":
		return gosnmp.DES
	case "AES", "AES128":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}

func isInSubtree(oid, root string) bool {
	return oid == root || strings.HasPrefix(oid, root+".")
}

func shouldExclude(oid string, excludes []string) bool {
	for _, ex := range excludes {
		ex = strings.TrimPrefix(strings.TrimSpace(ex), ".")
		if ex == "" {
			continue
		}
		if oid == ex || strings.HasPrefix(oid, ex+".") {
			return true
		}
	}
	return false
}
