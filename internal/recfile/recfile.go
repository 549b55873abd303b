// Package recfile provides seekable access to .snmprec data files: plain
// text files read directly via os.File, and gzip-compressed files read
// through a transparent in-memory decompression since gzip.Reader itself
// cannot seek. The teacher's internal/store/loader.go reads a whole file
// into memory up front with os.ReadFile; recfile keeps that same
// load-fully-then-index strategy but adds random-access line reads by byte
// offset, which the record index (internal/recindex) needs to avoid
// re-scanning a multi-million-line file on every lookup.
package recfile

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// File is an open, fully-buffered view of one record data file. Offsets
// recorded by internal/recindex are byte offsets into the decompressed
// content, valid for the lifetime of this File.
type File struct {
	path    string
	content []byte
}

// Open reads path fully into memory, transparently gunzipping it if it
// carries a .gz extension or a gzip magic header.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recfile: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	gzipped := strings.HasSuffix(path, ".gz") || (err == nil && len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b)

	var r io.Reader = br
	if gzipped {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("recfile: gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("recfile: read %s: %w", path, err)
	}
	return &File{path: path, content: content}, nil
}

// Path returns the file's source path, as given to Open.
func (f *File) Path() string { return f.path }

// Size returns the decompressed content length, the space byte offsets
// into this File are measured in.
func (f *File) Size() int64 { return int64(len(f.content)) }

// LineAt returns the single line starting at byte offset off, without its
// trailing newline. A negative offset or one past the end returns io.EOF.
func (f *File) LineAt(off int64) (string, error) {
	if off < 0 || off >= int64(len(f.content)) {
		return "", io.EOF
	}
	rest := f.content[off:]
	nl := strings.IndexByte(string(rest), '\n')
	if nl < 0 {
		return strings.TrimRight(string(rest), "\r"), nil
	}
	return strings.TrimRight(string(rest[:nl]), "\r"), nil
}

// Lines returns a callback-driven scan of every line in the file (empty
// lines included; the callback decides what to skip) along with the byte offset it starts at, the shape
// internal/recindex.Build needs to construct the sorted offset table.
func (f *File) Lines(fn func(offset int64, line string) error) error {
	var off int64
	s := bufio.NewScanner(strings.NewReader(string(f.content)))
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		lineLen := int64(len(line)) + 1
		if err := fn(off, line); err != nil {
			return err
		}
		off += lineLen
	}
	return s.Err()
}
