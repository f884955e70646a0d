package cases

import "caseflow/pkg/value"

// Case is one row of values matching a prototype. Cases are reference
// counted: Ref shares, Unref releases, and mutation requires sole ownership
// (Unshare copies when shared). The pipeline is single-threaded by contract,
// so the count is a plain int.
type Case struct {
	proto *Prototype
	vals  []value.Value
	refs  int
}

// New returns a fresh, unshared case matching proto, with every slot set to
// its initial value (numeric 0 or spaces).
func New(proto *Prototype) *Case {
	c := &Case{
		proto: proto,
		vals:  make([]value.Value, proto.Len()),
		refs:  1,
	}
	for i := range c.vals {
		c.vals[i] = value.New(proto.Width(i))
	}
	return c
}

// Proto returns the prototype the case was built against.
func (c *Case) Proto() *Prototype { return c.proto }

// Ref adds a reference and returns c for convenience.
func (c *Case) Ref() *Case {
	c.refs++
	return c
}

// Unref drops a reference. Unreferencing a dead case panics.
func (c *Case) Unref() {
	if c.refs <= 0 {
		panic("cases: Unref of dead case")
	}
	c.refs--
}

// Shared reports whether more than one holder references the case.
func (c *Case) Shared() bool { return c.refs > 1 }

// Unshare returns a case with the same contents that the caller solely owns:
// c itself when unshared, otherwise a deep copy (and c loses one reference).
func (c *Case) Unshare() *Case {
	if !c.Shared() {
		return c
	}
	c.refs--
	n := &Case{proto: c.proto, vals: make([]value.Value, len(c.vals)), refs: 1}
	for i := range c.vals {
		n.vals[i] = c.vals[i].Clone()
	}
	return n
}

// UnshareAndResize returns a solely owned case shaped like proto, preserving
// the values of every slot the two prototypes share. New slots get their
// initial value. The prototypes must be conformable.
func (c *Case) UnshareAndResize(proto *Prototype) *Case {
	if c.proto.Equal(proto) {
		return c.Unshare()
	}
	if !c.proto.Conformable(proto) {
		panic("cases: resize between non-conformable prototypes")
	}
	n := New(proto)
	keep := c.proto.Len()
	if proto.Len() < keep {
		keep = proto.Len()
	}
	for i := 0; i < keep; i++ {
		value.Copy(&n.vals[i], &c.vals[i])
	}
	c.Unref()
	return n
}

// Value returns a read-only view of slot idx.
func (c *Case) Value(idx int) *value.Value { return &c.vals[idx] }

// MutableValue returns slot idx for writing. The case must be unshared.
func (c *Case) MutableValue(idx int) *value.Value {
	if c.Shared() {
		panic("cases: write to shared case")
	}
	return &c.vals[idx]
}

// Num returns the numeric in slot idx.
func (c *Case) Num(idx int) float64 { return c.vals[idx].Num() }

// SetNum stores a numeric into slot idx. The case must be unshared.
func (c *Case) SetNum(idx int, f float64) { c.MutableValue(idx).SetNum(f) }

// Str returns the string content of slot idx.
func (c *Case) Str(idx int) []byte { return c.vals[idx].Str() }

// SetStr stores b into string slot idx, padded or truncated to the slot
// width. The case must be unshared.
func (c *Case) SetStr(idx int, b []byte) { c.MutableValue(idx).SetStr(b) }
