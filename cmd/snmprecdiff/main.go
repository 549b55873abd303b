// Command snmprecdiff reports the OID-level differences between two
// .snmprec files, the CLI wrapper around internal/recdiff.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmukherjee/snmprecsim/internal/recdiff"
)

func main() {
	flag.Parse()
	if flag.NArg() != 2 {
		log.Fatal("usage: snmprecdiff <left.snmprec> <right.snmprec>")
	}

	res, err := recdiff.CompareFiles(flag.Arg(0), flag.Arg(1))
	if err != nil {
		log.Fatalf("snmprecdiff: %v", err)
	}

	if res.Identical() {
		fmt.Printf("identical (%d records)\n", res.LeftCount)
		return
	}

	for _, d := range res.Diffs {
		switch d.Kind {
		case recdiff.Added:
			fmt.Printf("+ %s %s %s\n", d.OID, d.RightTag, d.RightValue)
		case recdiff.Removed:
			fmt.Printf("- %s %s %s\n", d.OID, d.LeftTag, d.LeftValue)
		case recdiff.Changed:
			fmt.Printf("~ %s %s %s -> %s %s\n", d.OID, d.LeftTag, d.LeftValue, d.RightTag, d.RightValue)
		}
	}
	os.Exit(1)
}
