package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeContextOrdersMostToLeastSpecific(t *testing.T) {
	in := ProbeInput{
		TransportFamily:  UDPv4,
		TransportDotted:  "1.3.6.1.6.1.1",
		TransportAddress: "127.0.0.1",
		ContextName:      "public",
	}
	got := ProbeContext(in)
	require.NotEmpty(t, got)
	require.Equal(t, got[0], "public/1.3.6.1.6.1.1/127.0.0.1")
	require.Equal(t, got[len(got)-1], "public")
}

func TestProbeContextDeterministic(t *testing.T) {
	in := ProbeInput{TransportFamily: UDPv4, TransportDotted: "1.3.6.1.6.1.1", TransportAddress: "10.0.0.1", ContextName: "foo"}
	a := ProbeContext(in)
	b := ProbeContext(in)
	require.Equal(t, a, b)
}

func TestProbeContextUDPv6ReplacesColons(t *testing.T) {
	in := ProbeInput{TransportFamily: UDPv6, TransportDotted: "1.3.6.1.6.1.2", TransportAddress: "::1", ContextName: "public"}
	got := ProbeContext(in)
	for _, c := range got {
		require.False(t, strings.Contains(c, "::1"))
	}
}

func TestProbeContextRecursesOnceWithEmptyContextEngineID(t *testing.T) {
	in := ProbeInput{
		TransportFamily:  UDPv4,
		TransportDotted:  "1.3.6.1.6.1.1",
		TransportAddress: "127.0.0.1",
		ContextEngineID:  "engine1",
		ContextName:      "public",
	}
	got := ProbeContext(in)
	withoutEngine := ProbeContext(ProbeInput{
		TransportFamily:  UDPv4,
		TransportDotted:  "1.3.6.1.6.1.1",
		TransportAddress: "127.0.0.1",
		ContextName:      "public",
	})
	require.Greater(t, len(got), len(withoutEngine))
}

func TestStripSelfYieldsDirectoryDefault(t *testing.T) {
	in := ProbeInput{TransportFamily: UDPv4, TransportDotted: "1.3.6.1.6.1.1", TransportAddress: "127.0.0.1", ContextName: "self"}
	got := ProbeContext(in)
	found := false
	for _, c := range got {
		if c == "" {
			found = true
		}
	}
	// contextName "self" is stripped, so one candidate collapses to "" (the directory default)
	require.True(t, found)
}

func TestRegistrationKeyFallsBackToDigestAbove32Bytes(t *testing.T) {
	short := "public"
	long := strings.Repeat("x", 40)
	require.Equal(t, short, RegistrationKey(short))
	require.NotEqual(t, long, RegistrationKey(long))
	require.Len(t, RegistrationKey(long), 32)
}

func TestContextTableRegistersBothLiteralAndDigest(t *testing.T) {
	tbl := NewContextTable()
	long := strings.Repeat("y", 50)
	tbl.Register(long, "agent-long")

	agentID, ok := tbl.Lookup(long)
	require.True(t, ok)
	require.Equal(t, "agent-long", agentID)

	agentID, ok = tbl.Lookup(RegistrationKey(long))
	require.True(t, ok)
	require.Equal(t, "agent-long", agentID)
}

func TestContextTableResolveFallsBackToOriginalContext(t *testing.T) {
	tbl := NewContextTable()
	tbl.Register("public", "public-agent")

	agentID, ok := tbl.Resolve([]string{"nope/a", "nope/b"}, "public")
	require.True(t, ok)
	require.Equal(t, "public-agent", agentID)

	_, ok = tbl.Resolve([]string{"nope/a"}, "still-nope")
	require.False(t, ok)
}
