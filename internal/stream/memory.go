package stream

import "caseflow/pkg/cases"

// contents is the shared backing store behind memory readers: an immutable
// sequence of cases plus the error flag it was produced with. The store
// holds one reference to each case for its lifetime; cloned readers hand out
// additional references.
type contents struct {
	proto *cases.Prototype
	list  []*cases.Case
	err   bool
}

type memReader struct {
	c      *contents
	pos    int
	closed bool
}

// NewReader returns a reader over the given cases. The reader takes
// ownership of one reference to each case.
func NewReader(proto *cases.Prototype, list []*cases.Case) Reader {
	return &memReader{c: &contents{proto: proto, list: list}}
}

func (r *memReader) Proto() *cases.Prototype { return r.c.proto }

func (r *memReader) Read() *cases.Case {
	if r.closed || r.c.err || r.pos >= len(r.c.list) {
		return nil
	}
	c := r.c.list[r.pos].Ref()
	r.pos++
	return c
}

func (r *memReader) Clone() Reader {
	return &memReader{c: r.c, pos: r.pos, closed: r.closed}
}

func (r *memReader) Error() bool { return r.c.err }

func (r *memReader) Close() bool {
	r.closed = true
	return !r.c.err
}

// MemWriter buffers written cases in memory. It is the simplest Writer and
// the memory phase of larger sinks.
type MemWriter struct {
	proto *cases.Prototype
	list  []*cases.Case
	err   bool
	done  bool
}

// NewMemWriter returns an empty in-memory sink for cases shaped by proto.
func NewMemWriter(proto *cases.Prototype) *MemWriter {
	return &MemWriter{proto: proto}
}

func (w *MemWriter) Proto() *cases.Prototype { return w.proto }

// Write appends c, taking ownership of the caller's reference. A case wider
// than the writer's prototype is trimmed to it; the extra slots are
// dropped. This happens when a temporary view adds variables the permanent
// output does not carry.
func (w *MemWriter) Write(c *cases.Case) {
	if w.done {
		panic("stream: Write to consumed MemWriter")
	}
	if c.Proto().Len() < w.proto.Len() || !c.Proto().Conformable(w.proto) {
		panic("stream: case shape does not match writer prototype")
	}
	if c.Proto().Len() > w.proto.Len() {
		c = c.UnshareAndResize(w.proto)
	}
	w.list = append(w.list, c)
}

func (w *MemWriter) Error() bool { return w.err }

// SetError marks the writer as failed; MakeReader propagates the flag.
func (w *MemWriter) SetError() { w.err = true }

// Len returns the number of cases written so far.
func (w *MemWriter) Len() int { return len(w.list) }

// Case returns the i-th written case without transferring ownership.
func (w *MemWriter) Case(i int) *cases.Case { return w.list[i] }

func (w *MemWriter) MakeReader() Reader {
	if w.done {
		panic("stream: MakeReader on consumed MemWriter")
	}
	w.done = true
	return &memReader{c: &contents{proto: w.proto, list: w.list, err: w.err}}
}
