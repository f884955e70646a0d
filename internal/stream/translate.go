package stream

import "caseflow/pkg/cases"

// TranslateFunc rewrites one case. It receives ownership of the input
// reference and returns a case the caller owns; the two may be the same.
type TranslateFunc func(*cases.Case) *cases.Case

// translator applies a stateless per-case function to everything read from a
// wrapped reader. Clones share the teardown, which runs once.
type translator struct {
	sub     Reader
	proto   *cases.Prototype
	fn      TranslateFunc
	destroy *sharedDestroy
	closed  bool
}

type sharedDestroy struct {
	fn   func() bool
	done bool
	ok   bool
	refs int
}

func (s *sharedDestroy) release() bool {
	s.refs--
	if s.refs > 0 {
		return true
	}
	if !s.done {
		s.done = true
		s.ok = s.fn == nil || s.fn()
	}
	return s.ok
}

// Translate wraps sub so that every case it yields is passed through fn,
// producing cases shaped by proto. The wrapped reader must not be used
// directly afterward. destroy, if non-nil, runs once when the last clone is
// closed; its result folds into Close.
func Translate(sub Reader, proto *cases.Prototype, fn TranslateFunc, destroy func() bool) Reader {
	return &translator{
		sub:     sub,
		proto:   proto,
		fn:      fn,
		destroy: &sharedDestroy{fn: destroy, refs: 1},
	}
}

func (t *translator) Proto() *cases.Prototype { return t.proto }

func (t *translator) Read() *cases.Case {
	if t.closed {
		return nil
	}
	c := t.sub.Read()
	if c == nil {
		return nil
	}
	return t.fn(c)
}

func (t *translator) Clone() Reader {
	t.destroy.refs++
	return &translator{
		sub:     t.sub.Clone(),
		proto:   t.proto,
		fn:      t.fn,
		destroy: t.destroy,
		closed:  t.closed,
	}
}

func (t *translator) Error() bool { return t.sub.Error() }

func (t *translator) Close() bool {
	if t.closed {
		return t.destroy.ok && !t.sub.Error()
	}
	t.closed = true
	ok := t.sub.Close()
	return t.destroy.release() && ok
}
