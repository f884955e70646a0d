package dictionary

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"caseflow/pkg/cases"
)

// Vector is a named, ordered group of variables, addressable as a unit by
// transformations.
type Vector struct {
	Name string
	Vars []*Variable
}

// Dictionary is the schema: an ordered set of variables plus session-level
// metadata held by reference to member variables.
type Dictionary struct {
	vars   []*Variable
	byName map[string]*Variable // keyed by folded name

	weight    *Variable
	filter    *Variable
	caseLimit int64
	splits    []*Variable
	vectors   []*Vector

	proto    *cases.Prototype // cached; nil after any edit
	onChange func()
}

// New returns an empty dictionary.
func New() *Dictionary {
	return &Dictionary{byName: make(map[string]*Variable)}
}

// fold canonicalizes a variable name for case-insensitive comparison.
// Names are NFC-normalized first so that visually identical names collide.
func fold(name string) string {
	return strings.ToUpper(norm.NFC.String(name))
}

// SetChangeCallback registers fn to run after every schema edit.
func (d *Dictionary) SetChangeCallback(fn func()) { d.onChange = fn }

func (d *Dictionary) changed() {
	d.proto = nil
	if d.onChange != nil {
		d.onChange()
	}
}

// Len returns the number of variables.
func (d *Dictionary) Len() int { return len(d.vars) }

// Var returns the variable at dict index idx.
func (d *Dictionary) Var(idx int) *Variable { return d.vars[idx] }

// Vars returns the variables in dictionary order. The slice is shared;
// callers must not modify it.
func (d *Dictionary) Vars() []*Variable { return d.vars }

// Lookup returns the variable with the given name (case-insensitive), or nil.
func (d *Dictionary) Lookup(name string) *Variable { return d.byName[fold(name)] }

// Contains reports whether v is a member of d.
func (d *Dictionary) Contains(v *Variable) bool { return v != nil && v.dict == d }

// CreateVar adds a variable with the given name and width at the end of the
// dictionary. It fails if the name is already taken.
func (d *Dictionary) CreateVar(name string, width int) (*Variable, error) {
	key := fold(name)
	if _, ok := d.byName[key]; ok {
		return nil, fmt.Errorf("dictionary: duplicate variable name %q", name)
	}
	v := &Variable{name: name, width: width, dictIndex: len(d.vars), dict: d}
	if width > 0 {
		v.format = FormatString
		v.measure = MeasureNominal
	}
	d.vars = append(d.vars, v)
	d.byName[key] = v
	d.changed()
	return v, nil
}

// MustCreateVar is CreateVar for names the caller knows are free.
func (d *Dictionary) MustCreateVar(name string, width int) *Variable {
	v, err := d.CreateVar(name, width)
	if err != nil {
		panic(err)
	}
	return v
}

// Rename gives v a new name. It fails if the new name belongs to a different
// variable.
func (d *Dictionary) Rename(v *Variable, name string) error {
	if !d.Contains(v) {
		panic("dictionary: Rename of foreign variable")
	}
	key := fold(name)
	if other, ok := d.byName[key]; ok && other != v {
		return fmt.Errorf("dictionary: duplicate variable name %q", name)
	}
	delete(d.byName, fold(v.name))
	v.name = name
	d.byName[key] = v
	d.changed()
	return nil
}

// DeleteVars removes the given variables. References from weight, filter,
// splits, and vectors to a deleted variable are dropped along with it.
func (d *Dictionary) DeleteVars(vars ...*Variable) {
	if len(vars) == 0 {
		return
	}
	dead := make(map[*Variable]bool, len(vars))
	for _, v := range vars {
		if !d.Contains(v) {
			panic("dictionary: DeleteVars of foreign variable")
		}
		dead[v] = true
	}

	if dead[d.weight] {
		d.weight = nil
	}
	if dead[d.filter] {
		d.filter = nil
	}
	d.splits = dropDead(d.splits, dead)
	kept := d.vectors[:0]
	for _, vec := range d.vectors {
		vec.Vars = dropDead(vec.Vars, dead)
		if len(vec.Vars) > 0 {
			kept = append(kept, vec)
		}
	}
	d.vectors = kept

	live := d.vars[:0]
	for _, v := range d.vars {
		if dead[v] {
			delete(d.byName, fold(v.name))
			v.dict = nil
			continue
		}
		v.dictIndex = len(live)
		live = append(live, v)
	}
	d.vars = live
	d.changed()
}

func dropDead(vars []*Variable, dead map[*Variable]bool) []*Variable {
	out := vars[:0]
	for _, v := range vars {
		if !dead[v] {
			out = append(out, v)
		}
	}
	return out
}

// ReorderVars moves the given variables, in the given order, to the front of
// the dictionary; the rest keep their relative order after them.
func (d *Dictionary) ReorderVars(vars ...*Variable) {
	moved := make(map[*Variable]bool, len(vars))
	order := make([]*Variable, 0, len(d.vars))
	for _, v := range vars {
		if !d.Contains(v) {
			panic("dictionary: ReorderVars of foreign variable")
		}
		if moved[v] {
			panic("dictionary: ReorderVars with duplicate variable")
		}
		moved[v] = true
		order = append(order, v)
	}
	for _, v := range d.vars {
		if !moved[v] {
			order = append(order, v)
		}
	}
	for i, v := range order {
		v.dictIndex = i
	}
	d.vars = order
	d.changed()
}

// DeleteScratchVars removes every scratch variable.
func (d *Dictionary) DeleteScratchVars() {
	var scratch []*Variable
	for _, v := range d.vars {
		if v.Scratch() {
			scratch = append(scratch, v)
		}
	}
	d.DeleteVars(scratch...)
}

// Proto returns the case prototype for the dictionary's current layout. The
// result is cached until the next edit.
func (d *Dictionary) Proto() *cases.Prototype {
	if d.proto == nil {
		widths := make([]int, len(d.vars))
		for i, v := range d.vars {
			widths[i] = v.width
		}
		d.proto = cases.NewPrototype(widths...)
	}
	return d.proto
}

// Weight returns the weight variable, or nil.
func (d *Dictionary) Weight() *Variable { return d.weight }

// SetWeight sets the weight variable; it must be a numeric member of d or nil.
func (d *Dictionary) SetWeight(v *Variable) {
	if v != nil && (!d.Contains(v) || !v.IsNumeric()) {
		panic("dictionary: invalid weight variable")
	}
	d.weight = v
}

// Filter returns the filter variable, or nil.
func (d *Dictionary) Filter() *Variable { return d.filter }

// SetFilter sets the filter variable; it must be a numeric member of d or nil.
func (d *Dictionary) SetFilter(v *Variable) {
	if v != nil && (!d.Contains(v) || !v.IsNumeric()) {
		panic("dictionary: invalid filter variable")
	}
	d.filter = v
}

// CaseLimit returns the maximum number of cases a procedure may process;
// 0 means no limit.
func (d *Dictionary) CaseLimit() int64 { return d.caseLimit }

// SetCaseLimit sets the case limit; 0 clears it.
func (d *Dictionary) SetCaseLimit(n int64) { d.caseLimit = n }

// SetSplits replaces the SPLIT FILE variables.
func (d *Dictionary) SetSplits(vars ...*Variable) {
	for _, v := range vars {
		if !d.Contains(v) {
			panic("dictionary: invalid split variable")
		}
	}
	d.splits = append([]*Variable(nil), vars...)
}

// Splits returns the SPLIT FILE variables.
func (d *Dictionary) Splits() []*Variable { return d.splits }

// SetVector adds or replaces the vector with the given name.
func (d *Dictionary) SetVector(name string, vars ...*Variable) {
	for _, v := range vars {
		if !d.Contains(v) {
			panic("dictionary: invalid vector variable")
		}
	}
	vec := &Vector{Name: name, Vars: append([]*Variable(nil), vars...)}
	for i, old := range d.vectors {
		if strings.EqualFold(old.Name, name) {
			d.vectors[i] = vec
			return
		}
	}
	d.vectors = append(d.vectors, vec)
}

// Vector returns the vector with the given name, or nil.
func (d *Dictionary) Vector(name string) *Vector {
	for _, vec := range d.vectors {
		if strings.EqualFold(vec.Name, name) {
			return vec
		}
	}
	return nil
}

// ClearVectors discards all vectors.
func (d *Dictionary) ClearVectors() { d.vectors = nil }

// Clear removes every variable and all metadata, leaving an empty dictionary.
func (d *Dictionary) Clear() {
	for _, v := range d.vars {
		v.dict = nil
	}
	d.vars = nil
	d.byName = make(map[string]*Variable)
	d.weight = nil
	d.filter = nil
	d.caseLimit = 0
	d.splits = nil
	d.vectors = nil
	d.changed()
}

// Clone returns a deep copy of d. Metadata references are remapped onto the
// cloned variables. The change callback is not cloned.
func (d *Dictionary) Clone() *Dictionary {
	n := New()
	remap := make(map[*Variable]*Variable, len(d.vars))
	for _, v := range d.vars {
		c := v.clone()
		c.dict = n
		c.dictIndex = len(n.vars)
		n.vars = append(n.vars, c)
		n.byName[fold(c.name)] = c
		remap[v] = c
	}
	n.weight = remap[d.weight]
	n.filter = remap[d.filter]
	n.caseLimit = d.caseLimit
	for _, v := range d.splits {
		n.splits = append(n.splits, remap[v])
	}
	for _, vec := range d.vectors {
		nv := &Vector{Name: vec.Name}
		for _, v := range vec.Vars {
			nv.Vars = append(nv.Vars, remap[v])
		}
		n.vectors = append(n.vectors, nv)
	}
	return n
}
