// Command snmprecgen walks a live SNMP agent with GETNEXT and writes the
// discovered OIDs to a .snmprec file, in the flag-parsing style the
// teacher's cmd/snmpsim/main.go uses for its own stringSliceFlag options.
// The output is immediately usable as a --data-dir entry for snmprecsim.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dmukherjee/snmprecsim/internal/recorder"
)

type stringSliceFlag []string

func (f *stringSliceFlag) String() string { return strings.Join(*f, ",") }
func (f *stringSliceFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	target := flag.String("target", "127.0.0.1", "address of the agent to walk")
	port := flag.Int("port", 161, "UDP port of the agent to walk")
	out := flag.String("output-file", "", "path to write the .snmprec file to (required)")
	timeout := flag.Duration("timeout", 2*time.Second, "per-request timeout")
	retries := flag.Int("retries", 3, "per-request retry count")
	maxOIDs := flag.Int("max-oids", 0, "stop after this many OIDs (0 = unlimited)")
	community := flag.String("community", "", "v1/v2c community string")
	v3User := flag.String("v3-user", "", "SNMPv3 username")
	v3Auth := flag.String("v3-auth-proto", "", "SNMPv3 auth protocol")
	v3AuthKey := flag.String("v3-auth-key", "", "SNMPv3 auth passphrase")
	v3Priv := flag.String("v3-priv-proto", "", "SNMPv3 priv protocol")
	v3PrivKey := flag.String("v3-priv-key", "", "SNMPv3 privacy passphrase")

	var roots, excludes stringSliceFlag
	flag.Var(&roots, "root", "subtree root to walk (repeatable, default: a standard set)")
	flag.Var(&excludes, "exclude", "subtree root to skip (repeatable)")

	flag.Parse()

	if *out == "" {
		log.Fatal("snmprecgen: --output-file is required")
	}

	entries, err := recorder.Record(recorder.Options{
		Target:    *target,
		Port:      uint16(*port),
		Timeout:   *timeout,
		Retries:   *retries,
		MaxOIDs:   *maxOIDs,
		Roots:     roots,
		Exclude:   excludes,
		Community: *community,
		V3User:    *v3User,
		V3Auth:    *v3Auth,
		V3AuthKey: *v3AuthKey,
		V3Priv:    *v3Priv,
		V3PrivKey: *v3PrivKey,
	})
	if err != nil {
		log.Fatalf("snmprecgen: walk failed: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("snmprecgen: create %s: %v", *out, err)
	}
	defer f.Close()

	for _, e := range entries {
		if _, err := fmt.Fprintf(f, "%s|%s|%s\n", e.OID, e.Tag, e.Value); err != nil {
			log.Fatalf("snmprecgen: write %s: %v", *out, err)
		}
	}

	log.Printf("snmprecgen: wrote %d OIDs to %s", len(entries), *out)
}
