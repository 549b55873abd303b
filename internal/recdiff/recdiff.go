// Package recdiff compares two .snmprec record files by OID, a supporting
// feature adapted from the teacher's internal/walkdiff.CompareFiles: load
// both files fully, union their OID sets, sort, and report what changed.
// Useful for validating a recorded snapshot against a previous one, or a
// hand-edited file against its source of truth.
package recdiff

import (
	"fmt"
	"sort"

	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/recfile"
)

// Kind names what changed at one OID.
type Kind string

const (
	Added   Kind = "added"
	Removed Kind = "removed"
	Changed Kind = "changed"
)

// Difference is one OID-level discrepancy between two record files.
type Difference struct {
	OID        string
	Kind       Kind
	LeftTag    string
	LeftValue  string
	RightTag   string
	RightValue string
}

// Result is the full comparison outcome.
type Result struct {
	LeftCount  int
	RightCount int
	Diffs      []Difference
}

// Identical reports whether the two files carry exactly the same records.
func (r Result) Identical() bool { return len(r.Diffs) == 0 }

// CompareFiles loads leftPath and rightPath and reports their differences
// by OID, in ascending numeric OID order.
func CompareFiles(leftPath, rightPath string) (Result, error) {
	left, err := loadRaw(leftPath)
	if err != nil {
		return Result{}, fmt.Errorf("recdiff: read left file: %w", err)
	}
	right, err := loadRaw(rightPath)
	if err != nil {
		return Result{}, fmt.Errorf("recdiff: read right file: %w", err)
	}

	seen := make(map[string]struct{}, len(left)+len(right))
	var oids []string
	for oid := range left {
		oids = append(oids, oid)
		seen[oid] = struct{}{}
	}
	for oid := range right {
		if _, ok := seen[oid]; !ok {
			oids = append(oids, oid)
		}
	}
	sort.Slice(oids, func(i, j int) bool { return record.Less(oids[i], oids[j]) })

	var diffs []Difference
	for _, oid := range oids {
		l, lok := left[oid]
		r, rok := right[oid]
		switch {
		case lok && !rok:
			diffs = append(diffs, Difference{OID: oid, Kind: Removed, LeftTag: l.Tag, LeftValue: l.Value})
		case !lok && rok:
			diffs = append(diffs, Difference{OID: oid, Kind: Added, RightTag: r.Tag, RightValue: r.Value})
		case l.Tag != r.Tag || l.Value != r.Value:
			diffs = append(diffs, Difference{
				OID: oid, Kind: Changed,
				LeftTag: l.Tag, LeftValue: l.Value,
				RightTag: r.Tag, RightValue: r.Value,
			})
		}
	}

	return Result{LeftCount: len(left), RightCount: len(right), Diffs: diffs}, nil
}

func loadRaw(path string) (map[string]record.Raw, error) {
	f, err := recfile.Open(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]record.Raw)
	err = f.Lines(func(offset int64, line string) error {
		raw, ok, err := record.Parse(line)
		if err != nil || !ok {
			return nil
		}
		out[raw.OID] = raw
		return nil
	})
	return out, err
}
