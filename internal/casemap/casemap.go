// Package casemap implements the case projection engine: index permutations
// that translate cases from an old schema layout to a new one after
// variables have been deleted, reordered, or renamed.
//
// The API is two-phase so a schema can be edited while a stream derived from
// the old layout is still in flight: NewStage snapshots every variable's
// identity and position, the caller edits the dictionary, and Stage.Map
// resolves old positions to new ones. Identity layouts produce no map at
// all, so pass-through costs nothing.
package casemap

import (
	"caseflow/internal/dictionary"
	"caseflow/internal/stream"
	"caseflow/pkg/cases"
	"caseflow/pkg/value"
)

const unmapped = -1

// Map is a projection from an old case layout to a new one: for each
// destination index, the source index it is filled from.
type Map struct {
	proto *cases.Prototype // shape of output cases
	src   []int
}

func newMap(proto *cases.Prototype) *Map {
	m := &Map{proto: proto, src: make([]int, proto.Len())}
	for i := range m.src {
		m.src[i] = unmapped
	}
	return m
}

func (m *Map) insert(from, to int) {
	if m.src[to] != unmapped {
		panic("casemap: destination index mapped twice")
	}
	m.src[to] = from
}

// Proto returns the prototype of cases the map produces.
func (m *Map) Proto() *cases.Prototype { return m.proto }

// Execute applies the map to src, consuming the caller's reference and
// returning a new case in the destination layout. A nil map returns src
// unchanged. Every destination slot must be mapped.
func (m *Map) Execute(src *cases.Case) *cases.Case {
	if m == nil {
		return src
	}
	dst := cases.New(m.proto)
	for to, from := range m.src {
		if from == unmapped {
			panic("casemap: unmapped destination index")
		}
		value.Copy(dst.MutableValue(to), src.Value(from))
	}
	src.Unref()
	return dst
}

// Stage is a snapshot of a dictionary's layout taken before an edit.
type Stage struct {
	dict    *dictionary.Dictionary
	oldIdx  map[*dictionary.Variable]int
	nBefore int
}

// NewStage snapshots dict's current variables and positions. Afterward the
// caller may delete, reorder, and rename variables in dict, but must not add
// any: an added variable could alias a deleted one and has no old position.
func NewStage(dict *dictionary.Dictionary) *Stage {
	s := &Stage{
		dict:    dict,
		oldIdx:  make(map[*dictionary.Variable]int, dict.Len()),
		nBefore: dict.Len(),
	}
	for _, v := range dict.Vars() {
		s.oldIdx[v] = v.DictIndex()
	}
	return s
}

// Map resolves the stage against the dictionary's current layout: for every
// surviving variable, old position → new position. It returns nil when no
// variable moved and none was deleted, i.e. no mapping is needed. Consumes
// the stage.
func (s *Stage) Map() *Map {
	n := s.dict.Len()
	identity := n == s.nBefore

	m := newMap(s.dict.Proto())
	for _, v := range s.dict.Vars() {
		old, ok := s.oldIdx[v]
		if !ok {
			// A variable the stage never saw was added afterward,
			// which the staging contract forbids.
			panic("casemap: variable added to staged dictionary")
		}
		if old != v.DictIndex() {
			identity = false
		}
		m.insert(old, v.DictIndex())
	}
	s.oldIdx = nil

	if identity {
		return nil
	}
	return m
}

// ByName builds a map translating cases laid out for old into cases laid
// out for new, matching variables by name. Every variable of new must exist
// in old with the same width.
func ByName(old, new *dictionary.Dictionary) *Map {
	m := newMap(new.Proto())
	for _, nv := range new.Vars() {
		ov := old.Lookup(nv.Name())
		if ov == nil || ov.Width() != nv.Width() {
			panic("casemap: ByName without matching variable in old dictionary")
		}
		m.insert(ov.DictIndex(), nv.DictIndex())
	}
	return m
}

// InputReader wraps sub so every case read is projected through m. A nil
// map returns sub unchanged. Takes ownership of sub.
func InputReader(m *Map, sub stream.Reader) stream.Reader {
	if m == nil {
		return sub
	}
	return stream.Translate(sub, m.proto, m.Execute, nil)
}

// OutputWriter wraps sub so every case written is projected through m
// before reaching it. proto is the shape accepted from callers. A nil map
// returns sub unchanged. Takes ownership of sub.
func OutputWriter(m *Map, proto *cases.Prototype, sub stream.Writer) stream.Writer {
	if m == nil {
		return sub
	}
	return stream.TranslateWriter(sub, proto, m.Execute, nil)
}
