package value

import "testing"

/*
TestNewAndMissing verifies the initial and missing contents for numeric and
string widths: numeric slots start at 0 and go system-missing, string slots
are spaces both ways.
*/
func TestNewAndMissing(t *testing.T) {
	n := New(0)
	if got := n.Num(); got != 0 {
		t.Fatalf("New(0).Num()=%v; want 0", got)
	}
	m := Missing(0)
	if !m.IsSysMis() {
		t.Fatalf("Missing(0) is not sysmis")
	}

	s := New(4)
	if got := string(s.Str()); got != "    " {
		t.Fatalf("New(4).Str()=%q; want 4 spaces", got)
	}
	sm := Missing(4)
	if got := string(sm.Str()); got != "    " {
		t.Fatalf("Missing(4).Str()=%q; want 4 spaces", got)
	}
}

/*
TestSetStrPadsAndTruncates verifies that SetStr space-pads short input and
truncates long input to the slot width.
*/
func TestSetStrPadsAndTruncates(t *testing.T) {
	v := New(4)
	v.SetStr([]byte("ab"))
	if got := string(v.Str()); got != "ab  " {
		t.Fatalf("after SetStr(ab): %q; want %q", got, "ab  ")
	}
	v.SetStr([]byte("abcdef"))
	if got := string(v.Str()); got != "abcd" {
		t.Fatalf("after SetStr(abcdef): %q; want %q", got, "abcd")
	}
}

/*
TestCopyAndEqual verifies deep copy semantics: Copy transfers content,
Clone detaches storage, and Equal compares content for both kinds.
*/
func TestCopyAndEqual(t *testing.T) {
	a := New(0)
	a.SetNum(42)
	b := New(0)
	Copy(&b, &a)
	if !Equal(&a, &b) {
		t.Fatalf("numeric Copy/Equal failed: %v vs %v", a.Num(), b.Num())
	}

	s := New(3)
	s.SetStr([]byte("xyz"))
	c := s.Clone()
	s.SetStr([]byte("abc"))
	if got := string(c.Str()); got != "xyz" {
		t.Fatalf("Clone shares storage: got %q; want %q", got, "xyz")
	}
	if Equal(&s, &c) {
		t.Fatalf("Equal(%q, %q)=true; want false", s.Str(), c.Str())
	}
}

/*
TestWidthMismatchPanics verifies that numeric/string misuse is treated as a
programming error.
*/
func TestWidthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Copy across widths did not panic")
		}
	}()
	a := New(0)
	b := New(2)
	Copy(&a, &b)
}
