// Package stream defines the pull-based row-stream contracts the pipeline is
// built from: Reader (a source of cases), Writer (a sink), stateless
// per-case translators, an in-memory store, and a buffering shim.
//
// Everything here is cooperative and single-threaded: no case is produced
// until a consumer asks for it, and producing one case pulls at most one
// case from the upstream source. I/O errors are not reported per read;
// readers and writers carry a sticky error flag that callers poll lazily and
// that Close folds into its boolean result. A case returned by Read carries
// a reference owned by the caller, who either unrefs it or passes ownership
// downstream.
package stream

import "caseflow/pkg/cases"

// Reader produces a stream of cases in a fixed order.
type Reader interface {
	// Proto describes the shape of every case the reader yields.
	Proto() *cases.Prototype

	// Read returns the next case, or nil at end of stream or after an
	// error. The caller owns the returned reference.
	Read() *cases.Case

	// Clone returns an independent cursor over the same logical data,
	// positioned at the same point as the original.
	Clone() Reader

	// Error reports whether an I/O error has occurred so far.
	Error() bool

	// Close releases the reader's resources and returns false if any
	// error was ever seen. A closed reader yields no more cases.
	Close() bool
}

// Writer consumes a stream of cases.
type Writer interface {
	// Proto describes the shape of cases the writer accepts.
	Proto() *cases.Prototype

	// Write takes ownership of one reference to c.
	Write(c *cases.Case)

	// Error reports whether an I/O error has occurred so far.
	Error() bool

	// MakeReader converts the fully written sink into a reader over
	// exactly the cases written, consuming the writer. The reader's
	// error flag starts from the writer's.
	MakeReader() Reader
}

// Drain reads r to exhaustion, discarding cases, and closes it. It returns
// false if the reader saw any error. Used to guarantee side effects of
// upstream transformations when output is not wanted.
func Drain(r Reader) bool {
	for c := r.Read(); c != nil; c = r.Read() {
		c.Unref()
	}
	return r.Close()
}
