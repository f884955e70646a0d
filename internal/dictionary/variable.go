// Package dictionary implements the schema for the case pipeline: an
// ordered, mutable list of variables plus the session-level metadata that
// refers to them (weight, filter, case limit, split variables, vectors).
//
// Variables are owned by exactly one dictionary. Everything that points at a
// variable (weight, filter, vectors, transformations) holds the same
// *Variable the dictionary owns, never a copy, so schema edits are visible
// everywhere at once. A variable's dict index is its position in the
// dictionary and doubles as the slot index into any case shaped by the
// dictionary's prototype.
package dictionary

import "math"

// Measure is a variable's measurement level.
type Measure int

const (
	MeasureUnknown Measure = iota
	MeasureNominal
	MeasureScale
)

// FormatClass is the coarse display-format classification the pipeline needs:
// just enough to drive the static measurement-level guess.
type FormatClass int

const (
	FormatPlain    FormatClass = iota // F-style plain numeric
	FormatString                      // alphanumeric
	FormatCurrency                    // dollar and friends
	FormatDateTime                    // dates, times, durations
)

// DefaultMeasure returns the measurement level a format implies on its own,
// or MeasureUnknown if the data has to decide.
func (f FormatClass) DefaultMeasure() Measure {
	switch f {
	case FormatString:
		return MeasureNominal
	case FormatCurrency, FormatDateTime:
		return MeasureScale
	default:
		return MeasureUnknown
	}
}

// Variable is one named schema slot.
type Variable struct {
	name      string
	width     int // 0 numeric, >0 string byte width
	leave     bool
	measure   Measure
	format    FormatClass
	missing   []float64 // user-missing numeric values
	dictIndex int

	dict *Dictionary
}

// Name returns the variable's name as given (original casing preserved).
func (v *Variable) Name() string { return v.name }

// Width returns the slot width: 0 for numeric.
func (v *Variable) Width() int { return v.width }

// IsNumeric reports whether the variable is numeric.
func (v *Variable) IsNumeric() bool { return v.width == 0 }

// DictIndex returns the variable's current position in its dictionary, which
// is also its slot index in cases shaped by the dictionary.
func (v *Variable) DictIndex() int { return v.dictIndex }

// Scratch reports whether the variable is a scratch variable. Scratch
// variables are named with a leading '#' and are projected away from sinks.
func (v *Variable) Scratch() bool { return len(v.name) > 0 && v.name[0] == '#' }

// Leave reports whether the variable carries its value over from one case to
// the next instead of being reset. Scratch variables always carry over.
func (v *Variable) Leave() bool { return v.leave || v.Scratch() }

// SetLeave marks or unmarks the variable as carried-over.
func (v *Variable) SetLeave(leave bool) { v.leave = leave }

// Measure returns the measurement level.
func (v *Variable) Measure() Measure { return v.measure }

// SetMeasure sets the measurement level.
func (v *Variable) SetMeasure(m Measure) { v.measure = m }

// Format returns the display-format class.
func (v *Variable) Format() FormatClass { return v.format }

// SetFormat sets the display-format class.
func (v *Variable) SetFormat(f FormatClass) { v.format = f }

// SetMissingValues replaces the variable's user-missing numeric values.
func (v *Variable) SetMissingValues(vals ...float64) {
	v.missing = append([]float64(nil), vals...)
}

// IsNumMissing reports whether f is system-missing or one of the variable's
// user-missing values.
func (v *Variable) IsNumMissing(f float64) bool {
	if f == -math.MaxFloat64 {
		return true
	}
	for _, m := range v.missing {
		if f == m {
			return true
		}
	}
	return false
}

func (v *Variable) clone() *Variable {
	n := *v
	n.missing = append([]float64(nil), v.missing...)
	n.dict = nil
	return &n
}
