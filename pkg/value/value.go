// Package value defines the single-cell value type used throughout the case
// pipeline. A value is either an 8-byte numeric or a fixed-width byte string;
// which one is determined by the width of the schema slot it belongs to
// (width 0 = numeric, width > 0 = string of exactly that many bytes).
//
// Widths are deliberately not stored inside the value itself: the schema owns
// them, and callers pass the slot width to the few operations that need it.
// Handing a value to a slot of the wrong width is a programming error and
// panics rather than returning an error.
package value

import (
	"bytes"
	"math"
)

// SysMis is the system-missing numeric value.
const SysMis = -math.MaxFloat64

// Value is one cell of a case. The zero Value is a numeric 0.
type Value struct {
	num float64
	str []byte // nil for numeric values; len(str) == width otherwise
}

// New returns a fresh value for a slot of the given width: numeric 0 for
// width 0, all spaces otherwise.
func New(width int) Value {
	if width == 0 {
		return Value{}
	}
	return Value{str: spaces(width)}
}

// Missing returns the missing value for a slot of the given width:
// system-missing for numerics, all spaces for strings.
func Missing(width int) Value {
	if width == 0 {
		return Value{num: SysMis}
	}
	return Value{str: spaces(width)}
}

// Num returns the numeric content. The value must be numeric.
func (v *Value) Num() float64 {
	if v.str != nil {
		panic("value: Num on string value")
	}
	return v.num
}

// SetNum stores a numeric. The value must be numeric.
func (v *Value) SetNum(f float64) {
	if v.str != nil {
		panic("value: SetNum on string value")
	}
	v.num = f
}

// Str returns the string content. The returned slice is the value's own
// storage; callers must not hold it across a mutation. The value must be a
// string.
func (v *Value) Str() []byte {
	if v.str == nil {
		panic("value: Str on numeric value")
	}
	return v.str
}

// SetStr copies b into the value, truncating or space-padding to the value's
// width. The value must be a string.
func (v *Value) SetStr(b []byte) {
	if v.str == nil {
		panic("value: SetStr on numeric value")
	}
	n := copy(v.str, b)
	for i := n; i < len(v.str); i++ {
		v.str[i] = ' '
	}
}

// SetMissing resets the value to system-missing or spaces.
func (v *Value) SetMissing() {
	if v.str == nil {
		v.num = SysMis
	} else {
		for i := range v.str {
			v.str[i] = ' '
		}
	}
}

// IsSysMis reports whether a numeric value is system-missing. False for
// string values.
func (v *Value) IsSysMis() bool {
	return v.str == nil && v.num == SysMis
}

// Width returns the width this value was built for: 0 for numerics.
func (v *Value) Width() int {
	return len(v.str)
}

// Clone returns an independent deep copy of v.
func (v *Value) Clone() Value {
	if v.str == nil {
		return Value{num: v.num}
	}
	return Value{str: append([]byte(nil), v.str...)}
}

// Copy copies src into dst. Both must have the same width.
func Copy(dst, src *Value) {
	if (dst.str == nil) != (src.str == nil) || len(dst.str) != len(src.str) {
		panic("value: Copy between mismatched widths")
	}
	if src.str == nil {
		dst.num = src.num
	} else {
		copy(dst.str, src.str)
	}
}

// Equal reports whether two values of the same width hold identical content.
func Equal(a, b *Value) bool {
	if a.str == nil && b.str == nil {
		return a.num == b.num
	}
	return a.str != nil && b.str != nil && bytes.Equal(a.str, b.str)
}

func spaces(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return b
}
