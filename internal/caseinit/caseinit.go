// Package caseinit implements the case value lifecycle manager. It
// partitions every schema slot into exactly one of three classes — already
// initialized by the data source, reset before every case, or carried over
// from the previous case — and performs the per-case reset/restore/save
// operations that contract implies.
//
// The partition is the authoritative agreement between a source and the
// pipeline: a slot the source pre-initializes must never be touched here,
// and a slot in both the pre-initialized set and a lifecycle set is a
// programming error.
package caseinit

import (
	"sort"

	"caseflow/internal/dictionary"
	"caseflow/internal/stream"
	"caseflow/pkg/cases"
	"caseflow/pkg/value"
)

// slot binds a stored value to the case index it belongs to.
type slot struct {
	index int
	val   value.Value
}

// slotList is a set of slots ordered by case index.
type slotList struct {
	slots []slot
}

func (l *slotList) includes(index int) bool {
	i := sort.Search(len(l.slots), func(i int) bool { return l.slots[i].index >= index })
	return i < len(l.slots) && l.slots[i].index == index
}

// mark adds every variable of d whose carry-over status matches left and
// that is not excluded, storing the given initial value per slot. The list
// is re-sorted and deduplicated; a slot appearing in both this list and
// exclude is a defect the exclusion prevents by construction.
func (l *slotList) mark(d *dictionary.Dictionary, exclude *slotList, left bool) {
	for _, v := range d.Vars() {
		if v.Leave() != left {
			continue
		}
		idx := v.DictIndex()
		if exclude != nil && exclude.includes(idx) {
			continue
		}
		s := slot{index: idx}
		if left && v.IsNumeric() {
			s.val = value.New(0) // carried-over numerics start at 0
		} else {
			s.val = value.Missing(v.Width())
		}
		l.slots = append(l.slots, s)
	}

	sort.SliceStable(l.slots, func(i, j int) bool {
		return l.slots[i].index < l.slots[j].index
	})
	uniq := l.slots[:0]
	for i, s := range l.slots {
		if i > 0 && s.index == uniq[len(uniq)-1].index {
			continue
		}
		uniq = append(uniq, s)
	}
	l.slots = uniq
}

func (l *slotList) clone() slotList {
	out := slotList{slots: make([]slot, len(l.slots))}
	for i, s := range l.slots {
		out.slots[i] = slot{index: s.index, val: s.val.Clone()}
	}
	return out
}

// writeTo copies every stored value into its slot of c.
func (l *slotList) writeTo(c *cases.Case) {
	for i := range l.slots {
		s := &l.slots[i]
		value.Copy(c.MutableValue(s.index), &s.val)
	}
}

// readFrom copies every slot of c back into stored values.
func (l *slotList) readFrom(c *cases.Case) {
	for i := range l.slots {
		s := &l.slots[i]
		value.Copy(&s.val, c.Value(s.index))
	}
}

// Init is a case initializer: the three slot-sets plus the live values of
// carried-over slots.
type Init struct {
	preinited slotList // owned by the source; hands off
	reinit    slotList // reset to missing every case
	left      slotList // carried over; holds the last known values
	saved     bool     // SaveLeft has run at least once
}

// New returns an empty initializer.
func New() *Init { return &Init{} }

// Clone returns a deep copy, including the current carried-over values.
func (ci *Init) Clone() *Init {
	return &Init{
		preinited: ci.preinited.clone(),
		reinit:    ci.reinit.clone(),
		left:      ci.left.clone(),
		saved:     ci.saved,
	}
}

// Clear empties all three slot-sets.
func (ci *Init) Clear() { *ci = Init{} }

// MarkPreinited records that the current source already initializes every
// slot of d, so the initializer must leave them alone.
func (ci *Init) MarkPreinited(d *dictionary.Dictionary) {
	ci.preinited.mark(d, nil, false)
	ci.preinited.mark(d, nil, true)
}

// MarkForInit classifies every slot of d not already marked pre-initialized
// as reset or carried over. Carried-over numeric slots start at 0, all other
// slots at system-missing or spaces.
func (ci *Init) MarkForInit(d *dictionary.Dictionary) {
	ci.reinit.mark(d, &ci.preinited, false)
	ci.left.mark(d, &ci.preinited, true)
	for _, s := range ci.reinit.slots {
		if ci.left.includes(s.index) || ci.preinited.includes(s.index) {
			panic("caseinit: slot classified more than once")
		}
	}
	for _, s := range ci.left.slots {
		if ci.preinited.includes(s.index) {
			panic("caseinit: slot classified more than once")
		}
	}
}

// ReinitCount returns the number of slots reset per case.
func (ci *Init) ReinitCount() int { return len(ci.reinit.slots) }

// InitCase writes every reset slot's value into c. Called once per case
// before transformations run; idempotent. c must be unshared.
func (ci *Init) InitCase(c *cases.Case) { ci.reinit.writeTo(c) }

// RestoreLeft writes the stored carried-over values into a freshly built
// case. Before the first SaveLeft there is nothing to restore and the
// case's own content stands. c must be unshared.
func (ci *Init) RestoreLeft(c *cases.Case) {
	if !ci.saved {
		return
	}
	ci.left.writeTo(c)
}

// SaveLeft copies c's carried-over slots back into storage, after the case
// has passed through the permanent chain.
func (ci *Init) SaveLeft(c *cases.Case) {
	ci.left.readFrom(c)
	ci.saved = true
}

// TranslateReader returns a reader that yields each case from r resized to
// proto and initialized as if by InitCase. It takes ownership of r. When
// resizing is a no-op and nothing needs initializing, r itself is returned.
// proto must be conformable with r's prototype.
func (ci *Init) TranslateReader(proto *cases.Prototype, r stream.Reader) stream.Reader {
	if !r.Proto().Conformable(proto) {
		panic("caseinit: translate to non-conformable prototype")
	}
	if r.Proto().Equal(proto) && ci.ReinitCount() == 0 {
		return r
	}
	reinit := ci.reinit.clone()
	return stream.Translate(r, proto, func(c *cases.Case) *cases.Case {
		c = c.UnshareAndResize(proto)
		reinit.writeTo(c)
		return c
	}, nil)
}
