// Package recindex builds and persists the per-record-file OID index: a
// sorted table of (oid, byteOffset, subtreeFlag, prevOffset) entries that
// lets the lookup engine binary-search for an exact OID or the nearest
// OID greater than a given one without rescanning the record file. The
// sort.Search-based binary search and isOIDLess idiom are grounded in the
// teacher's internal/store/index_manager.go; the persisted sibling-file
// format and its Missing/Fresh/Stale freshness states follow spec.md §4.2.
package recindex

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	radix "github.com/armon/go-radix"

	"github.com/dmukherjee/snmprecsim/internal/record"
	"github.com/dmukherjee/snmprecsim/internal/recfile"
	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

// Entry is one row of the index: the OID it was built from, the byte
// offset of its record line in the data file, whether the OID belongs to
// a multi-row subtree (so GETNEXT must re-evaluate rather than return it
// verbatim), and the offset of the entry immediately before it in sorted
// order (-1 for the first entry).
type Entry struct {
	OID         string
	Offset      int64
	SubtreeFlag bool
	PrevOffset  int64
}

// Index is the built, queryable OID index for one record data file.
type Index struct {
	sorted []Entry          // ascending OID order, for binary search
	exact  *radix.Tree      // OID -> position in sorted, for O(log n) exact lookup
	path   string           // the sibling .idx file, if persisted
}

// State reports how an index relates to its backing data file on disk,
// the three-state machine spec.md §4.2 names.
type State int

const (
	// Missing: no sibling .idx file exists yet.
	Missing State = iota
	// Fresh: the .idx file exists and its recorded size/mtime match the
	// data file exactly.
	Fresh
	// Stale: the .idx file exists but the data file has changed since it
	// was built.
	Stale
)

// sidecarSuffix is appended to a data file's path to name its index file.
const sidecarSuffix = ".idx"

// SidecarPath returns the conventional index path for a data file.
func SidecarPath(dataPath string) string { return dataPath + sidecarSuffix }

// Stat determines the freshness state of dataPath's sidecar index without
// loading either file fully.
func Stat(dataPath string) (State, error) {
	idxPath := SidecarPath(dataPath)
	idxInfo, err := os.Stat(idxPath)
	if os.IsNotExist(err) {
		return Missing, nil
	}
	if err != nil {
		return Missing, fmt.Errorf("recindex: stat %s: %w", idxPath, err)
	}
	dataInfo, err := os.Stat(dataPath)
	if err != nil {
		return Missing, fmt.Errorf("recindex: stat %s: %w", dataPath, err)
	}

	f, err := os.Open(idxPath)
	if err != nil {
		return Missing, fmt.Errorf("recindex: open %s: %w", idxPath, err)
	}
	defer f.Close()

	header, ok, err := readHeader(f)
	if err != nil || !ok {
		return Stale, nil
	}
	if header.size != dataInfo.Size() || header.modTime != dataInfo.ModTime().UnixNano() {
		return Stale, nil
	}
	_ = idxInfo
	return Fresh, nil
}

type header struct {
	size    int64
	modTime int64
}

// readHeader parses the single "# size modtime" comment line an index
// file begins with.
func readHeader(f *os.File) (header, bool, error) {
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return header{}, false, sc.Err()
	}
	line := sc.Text()
	if !strings.HasPrefix(line, "# ") {
		return header{}, false, nil
	}
	fields := strings.Fields(strings.TrimPrefix(line, "# "))
	if len(fields) != 2 {
		return header{}, false, nil
	}
	size, err1 := strconv.ParseInt(fields[0], 10, 64)
	modTime, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		return header{}, false, nil
	}
	return header{size: size, modTime: modTime}, true, nil
}

// Build scans f's record lines and constructs an in-memory Index. It
// requires the OIDs to already be numerically sorted in the file, as
// spec.md §4.2 requires of .snmprec files; Build enforces that
// and returns snmperr.ErrIndexBuild if it finds a non-monotone OID, since
// a scrambled file breaks the binary-search precondition the whole index
// exists to provide.
func Build(f *recfile.File) (*Index, error) {
	var entries []Entry
	var lastOID string
	first := true

	err := f.Lines(func(offset int64, line string) error {
		raw, ok, err := record.Parse(line)
		if err != nil {
			return fmt.Errorf("%w: %v", snmperr.ErrIndexBuild, err)
		}
		if !ok {
			return nil
		}
		if !first && record.Less(raw.OID, lastOID) {
			return fmt.Errorf("%w: %s: OID %s out of order after %s", snmperr.ErrIndexBuild, f.Path(), raw.OID, lastOID)
		}
		entries = append(entries, Entry{OID: raw.OID, Offset: offset})
		lastOID = raw.OID
		first = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	markSubtrees(entries)

	tree := radix.New()
	for i := range entries {
		if i == 0 {
			entries[i].PrevOffset = -1
		} else {
			entries[i].PrevOffset = entries[i-1].Offset
		}
		tree.Insert(entries[i].OID, i)
	}

	return &Index{sorted: entries, exact: tree}, nil
}

// markSubtrees flags every entry that shares its immediate parent OID
// (all but its last component) with a neighbor: such entries form a
// table row or other multi-instance subtree, and GETNEXT on them must
// re-probe the variation layer rather than answering from the cached
// record directly, per spec.md §4.3.
func markSubtrees(entries []Entry) {
	parent := func(oid string) string {
		idx := strings.LastIndexByte(oid, '.')
		if idx < 0 {
			return oid
		}
		return oid[:idx]
	}
	for i := range entries {
		p := parent(entries[i].OID)
		if i > 0 && parent(entries[i-1].OID) == p {
			entries[i].SubtreeFlag = true
			entries[i-1].SubtreeFlag = true
		}
	}
}

// Save persists idx to dataPath's sidecar file in the text format:
//
//	# <dataSize> <dataModTimeUnixNano>
//	<oid> <offset>,<subtreeFlag 0|1>,<prevOffset>
//	...
//
// -1 is written literally for the first entry's prevOffset, resolving
// spec.md §9's open question about the sentinel's on-disk representation
// in favor of a plain text format with no binary ambiguity.
func (idx *Index) Save(dataPath string) error {
	info, err := os.Stat(dataPath)
	if err != nil {
		return fmt.Errorf("recindex: stat %s: %w", dataPath, err)
	}
	idxPath := SidecarPath(dataPath)
	tmp := idxPath + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("recindex: create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# %d %d\n", info.Size(), info.ModTime().UnixNano())
	for _, e := range idx.sorted {
		subtree := 0
		if e.SubtreeFlag {
			subtree = 1
		}
		fmt.Fprintf(w, "%s %d,%d,%d\n", e.OID, e.Offset, subtree, e.PrevOffset)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("recindex: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("recindex: close %s: %w", tmp, err)
	}
	idx.path = idxPath
	return os.Rename(tmp, idxPath)
}

// Load reads a previously persisted sidecar index without rescanning the
// data file. Callers should check Stat first; Load does not itself
// verify freshness against dataPath.
func Load(dataPath string) (*Index, error) {
	idxPath := SidecarPath(dataPath)
	f, err := os.Open(idxPath)
	if err != nil {
		return nil, fmt.Errorf("recindex: open %s: %w", idxPath, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		return nil, fmt.Errorf("%w: %s: empty index file", snmperr.ErrIndexBuild, idxPath)
	}

	var entries []Entry
	for sc.Scan() {
		line := sc.Text()
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: %s: malformed index line %q", snmperr.ErrIndexBuild, idxPath, line)
		}
		oid := line[:sp]
		fields := strings.Split(line[sp+1:], ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: %s: malformed index line %q", snmperr.ErrIndexBuild, idxPath, line)
		}
		offset, err1 := strconv.ParseInt(fields[0], 10, 64)
		subtree, err2 := strconv.Atoi(fields[1])
		prevOffset, err3 := strconv.ParseInt(fields[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("%w: %s: malformed index line %q", snmperr.ErrIndexBuild, idxPath, line)
		}
		entries = append(entries, Entry{OID: oid, Offset: offset, SubtreeFlag: subtree != 0, PrevOffset: prevOffset})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("recindex: read %s: %w", idxPath, err)
	}

	tree := radix.New()
	for i, e := range entries {
		tree.Insert(e.OID, i)
	}
	return &Index{sorted: entries, exact: tree, path: idxPath}, nil
}

// Len returns the number of indexed records, the upper bound spec.md
// §4.4's endOfMib re-loop uses to cap how many times it re-probes a
// subtree before concluding the walk is exhausted.
func (idx *Index) Len() int { return len(idx.sorted) }

// Lookup returns the exact entry for oid, if present.
func (idx *Index) Lookup(oid string) (Entry, bool) {
	v, ok := idx.exact.Get(record.Canonical(oid))
	if !ok {
		return Entry{}, false
	}
	return idx.sorted[v.(int)], true
}

// Next returns the first indexed entry strictly greater than oid under
// numeric OID ordering, the core GETNEXT primitive. ok is false at the
// end of the file.
func (idx *Index) Next(oid string) (Entry, bool) {
	oid = record.Canonical(oid)
	pos := sort.Search(len(idx.sorted), func(i int) bool {
		return record.Compare(idx.sorted[i].OID, oid) > 0
	})
	if pos >= len(idx.sorted) {
		return Entry{}, false
	}
	return idx.sorted[pos], true
}

// AtOrAfter returns the first indexed entry greater than or equal to oid.
func (idx *Index) AtOrAfter(oid string) (Entry, bool) {
	oid = record.Canonical(oid)
	pos := sort.Search(len(idx.sorted), func(i int) bool {
		return record.Compare(idx.sorted[i].OID, oid) >= 0
	})
	if pos >= len(idx.sorted) {
		return Entry{}, false
	}
	return idx.sorted[pos], true
}

// EntryAt returns the sorted entry at position i, used when the lookup
// engine needs to walk forward from an entry it already located.
func (idx *Index) EntryAt(i int) (Entry, bool) {
	if i < 0 || i >= len(idx.sorted) {
		return Entry{}, false
	}
	return idx.sorted[i], true
}

// IndexOf returns the sorted position of oid, used to turn a Lookup/Next
// result into a cursor for EntryAt-based forward walks.
func (idx *Index) IndexOf(oid string) (int, bool) {
	v, ok := idx.exact.Get(record.Canonical(oid))
	if !ok {
		return 0, false
	}
	return v.(int), true
}

// Validate builds a fresh index from f and compares it structurally
// against idx (record count, then each entry's OID and byte offset),
// returning an error naming the first discrepancy. The record store calls
// it when opened with validation on (`snmprecsim --validate-data`).
func Validate(f *recfile.File, idx *Index) error {
	fresh, err := Build(f)
	if err != nil {
		return err
	}
	if fresh.Len() != idx.Len() {
		return fmt.Errorf("%w: record count changed: %d vs %d", snmperr.ErrIndexBuild, idx.Len(), fresh.Len())
	}
	for i, e := range fresh.sorted {
		if idx.sorted[i].OID != e.OID {
			return fmt.Errorf("%w: entry %d OID mismatch: %s vs %s", snmperr.ErrIndexBuild, i, idx.sorted[i].OID, e.OID)
		}
		if idx.sorted[i].Offset != e.Offset {
			return fmt.Errorf("%w: entry %d (%s) offset mismatch: %d vs %d", snmperr.ErrIndexBuild, i, e.OID, idx.sorted[i].Offset, e.Offset)
		}
	}
	return nil
}
