// Package snmperr names the error taxonomy shared by the record store,
// lookup engine, and request pipeline. Errors are sentinels wrapped with
// fmt.Errorf("...: %w", ...) at the call site, not distinct types, so
// callers compare with errors.Is.
package snmperr

import "errors"

var (
	// ErrConfig marks a fatal configuration problem: bad CLI flags, a
	// missing data directory, an invalid v3 engine block.
	ErrConfig = errors.New("configuration error")

	// ErrIndexBuild marks a non-monotone OID sequence or I/O failure while
	// building a record index. Fatal for the one data file involved.
	ErrIndexBuild = errors.New("index build error")

	// ErrBadRecord marks a malformed record line (grammar failure).
	ErrBadRecord = errors.New("bad record")

	// ErrBadValue marks a record whose VALUE field could not be decoded
	// under its TAG.
	ErrBadValue = errors.New("bad value")

	// ErrUnknownVariation marks a TAG referencing a variation module that
	// was never loaded.
	ErrUnknownVariation = errors.New("unknown variation module")

	// ErrNoData is raised by a variation module to abort the current
	// request with no response emitted. It is the Go encoding of spec.md's
	// NoDataNotification: propagated as a tagged Drop result rather than
	// a panic/exception, per SPEC_FULL.md's design-notes resolution.
	ErrNoData = errors.New("no data notification")
)

// Dropped reports whether err (or anything it wraps) signals that the
// current request must be silently dropped rather than answered.
func Dropped(err error) bool {
	return errors.Is(err, ErrNoData)
}
