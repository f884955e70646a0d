package stream

import "caseflow/pkg/cases"

// Shim is a buffering adapter placed atop a per-procedure reader. Normally
// it is transparent, pulling one case per Read. Slurp eagerly drains the
// wrapped reader into memory so the shim (and its clones) can outlive the
// procedure that produced the stream.
type Shim struct {
	sub    Reader // nil once slurped or exhausted
	buf    *contents
	pos    int
	closed bool
}

// NewShim wraps r. The wrapped reader must not be used directly afterward.
func NewShim(r Reader) *Shim {
	return &Shim{sub: r, buf: &contents{proto: r.Proto()}}
}

func (s *Shim) Proto() *cases.Prototype { return s.buf.proto }

// Slurp reads every remaining case from the wrapped source into the shim's
// buffer and closes the source. Safe to call more than once.
func (s *Shim) Slurp() {
	if s.sub == nil {
		return
	}
	for c := s.sub.Read(); c != nil; c = s.sub.Read() {
		s.buf.list = append(s.buf.list, c)
	}
	if !s.sub.Close() {
		s.buf.err = true
	}
	s.sub = nil
}

func (s *Shim) Read() *cases.Case {
	if s.closed || s.buf.err {
		return nil
	}
	if s.pos < len(s.buf.list) {
		c := s.buf.list[s.pos].Ref()
		s.pos++
		return c
	}
	if s.sub == nil {
		return nil
	}
	c := s.sub.Read()
	if c == nil {
		if !s.sub.Close() {
			s.buf.err = true
		}
		s.sub = nil
		return nil
	}
	// Keep a reference in the buffer so clones created later still see
	// the full stream.
	s.buf.list = append(s.buf.list, c.Ref())
	s.pos++
	return c
}

// Clone buffers the remaining input and returns an independent cursor at the
// same position.
func (s *Shim) Clone() Reader {
	s.Slurp()
	return &Shim{buf: s.buf, pos: s.pos, closed: s.closed}
}

func (s *Shim) Error() bool {
	return s.buf.err || (s.sub != nil && s.sub.Error())
}

func (s *Shim) Close() bool {
	if s.closed {
		return !s.buf.err
	}
	s.closed = true
	if s.sub != nil {
		// The consumer abandoned the stream. Drain it anyway so that
		// upstream side effects happen for every input case.
		for c := s.sub.Read(); c != nil; c = s.sub.Read() {
			c.Unref()
		}
		if !s.sub.Close() {
			s.buf.err = true
		}
		s.sub = nil
	}
	return !s.buf.err
}
