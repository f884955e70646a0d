// Package cases implements case prototypes and reference-counted cases, the
// row representation shared by every stage of the pipeline.
//
// A prototype is the ordered list of slot widths a case must match. Cases are
// reference counted so that several holders (the lag ring, a sink, the
// procedure consumer) can share one case cheaply; a holder that wants to
// mutate must first Unshare, giving copy-on-write semantics. Reading or
// writing a case against a prototype it does not match is a programming
// error, not a runtime one, and panics.
package cases

// Prototype describes the shape of a case: one width per slot, in order.
// Width 0 is numeric, width > 0 a string of that many bytes. Prototypes are
// immutable once built.
type Prototype struct {
	widths []int
}

// NewPrototype returns a prototype with the given slot widths.
func NewPrototype(widths ...int) *Prototype {
	p := &Prototype{widths: make([]int, len(widths))}
	copy(p.widths, widths)
	return p
}

// Len returns the number of slots.
func (p *Prototype) Len() int { return len(p.widths) }

// Width returns the width of slot idx.
func (p *Prototype) Width(idx int) int { return p.widths[idx] }

// Equal reports whether p and q have identical widths.
func (p *Prototype) Equal(q *Prototype) bool {
	if len(p.widths) != len(q.widths) {
		return false
	}
	for i, w := range p.widths {
		if q.widths[i] != w {
			return false
		}
	}
	return true
}

// Conformable reports whether every slot the two prototypes have in common
// has the same width, so a case of one shape can be resized to the other
// without reinterpreting any surviving slot.
func (p *Prototype) Conformable(q *Prototype) bool {
	n := len(p.widths)
	if len(q.widths) < n {
		n = len(q.widths)
	}
	for i := 0; i < n; i++ {
		if p.widths[i] != q.widths[i] {
			return false
		}
	}
	return true
}
