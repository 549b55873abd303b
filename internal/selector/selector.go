// Package selector implements ProbeContext (C5): the path-style candidate
// generation spec.md §4.5 uses to turn a transport/context tuple into an
// agent data-file identifier, plus the context registration table that
// backs it. Candidate generation is pure string/path manipulation; the
// MD5-digest fallback for long names follows spec.md's note that it
// "matches how long community names are registered."
package selector

import (
	"crypto/md5"
	"encoding/hex"
	"path"
	"strings"
)

// TransportFamily names the three endpoint kinds spec.md §4.8 supports.
type TransportFamily int

const (
	UDPv4 TransportFamily = iota
	UDPv6
	Unix
)

// ProbeInput is the tuple spec.md §4.5 feeds into candidate generation.
type ProbeInput struct {
	TransportFamily   TransportFamily
	TransportDotted   string // the transport-domain OID, dotted form
	TransportAddress  string // IPv4/IPv6 literal or unix socket path
	ContextEngineID   string
	ContextName       string
}

// ProbeContext generates the ordered candidate list spec.md §4.5 describes:
// starting from the most specific path, stripping the last component each
// time, and — when a non-empty contextEngineID was supplied — repeating the
// whole sequence once more with it cleared (the "legacy layout fallback").
func ProbeContext(in ProbeInput) []string {
	primary := candidateSequence(in)
	if in.ContextEngineID == "" {
		return primary
	}
	legacy := candidateSequence(ProbeInput{
		TransportFamily:  in.TransportFamily,
		TransportDotted:  in.TransportDotted,
		TransportAddress: in.TransportAddress,
		ContextEngineID:  "",
		ContextName:      in.ContextName,
	})
	return append(primary, legacy...)
}

func candidateSequence(in ProbeInput) []string {
	components := []string{}
	if in.ContextEngineID != "" {
		components = append(components, in.ContextEngineID)
	}
	if in.ContextName != "" {
		components = append(components, in.ContextName)
	}
	if in.TransportDotted != "" {
		components = append(components, in.TransportDotted)
	}
	if tc := transportComponent(in); tc != "" {
		components = append(components, tc)
	}

	components = filterEmpty(components)
	full := normalizePath(path.Join(components...))

	var out []string
	cur := full
	for {
		if cur != "" {
			out = append(out, stripSelf(cur))
		}
		idx := strings.LastIndexByte(cur, '/')
		if idx < 0 {
			break
		}
		cur = cur[:idx]
	}
	return out
}

func transportComponent(in ProbeInput) string {
	switch in.TransportFamily {
	case UDPv6:
		return strings.ReplaceAll(in.TransportAddress, ":", "_")
	default:
		return in.TransportAddress
	}
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizePath(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// stripSelf removes a literal leading "self" path component: spec.md
// §4.5/§6 treats it as "this agent", so a file named self.snmprec at a
// data-directory root registers as the empty / directory-default agent.
func stripSelf(p string) string {
	if p == "self" {
		return ""
	}
	return strings.TrimPrefix(p, "self/")
}

const maxLiteralLen = 32

// RegistrationKey returns the key a context table entry is stored or
// looked up under: the literal name if it fits within 32 bytes, else its
// MD5 hex digest.
func RegistrationKey(name string) string {
	if len(name) <= maxLiteralLen {
		return name
	}
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])
}

// ContextTable maps registration keys to agent identifiers. Registering a
// name stores it under both its literal key and, per spec.md scenario 6,
// its digest key when the name exceeds 32 bytes — "both registrations
// present."
type ContextTable struct {
	entries map[string]string
}

// NewContextTable constructs an empty table.
func NewContextTable() *ContextTable {
	return &ContextTable{entries: make(map[string]string)}
}

// Register binds name to agentID, storing both the literal and (if it
// differs) the digest key.
func (t *ContextTable) Register(name, agentID string) {
	t.entries[name] = agentID
	if digest := RegistrationKey(name); digest != name {
		t.entries[digest] = agentID
	}
}

// Lookup resolves name, trying the literal key first, falling back to its
// MD5 digest when the literal is longer than 32 bytes.
func (t *ContextTable) Lookup(name string) (string, bool) {
	if agentID, ok := t.entries[name]; ok {
		return agentID, true
	}
	if key := RegistrationKey(name); key != name {
		if agentID, ok := t.entries[key]; ok {
			return agentID, true
		}
	}
	return "", false
}

// Resolve walks candidates in order, returning the first one registered
// in the table (per the rules of Lookup). It is the dispatcher step
// spec.md §4.5 describes: "walks the sequence and picks the first
// candidate registered."
func (t *ContextTable) Resolve(candidates []string, fallback string) (string, bool) {
	for _, c := range candidates {
		if agentID, ok := t.Lookup(c); ok {
			return agentID, true
		}
	}
	if fallback != "" {
		if agentID, ok := t.Lookup(fallback); ok {
			return agentID, true
		}
	}
	return "", false
}
