package casemap

import (
	"testing"

	"caseflow/internal/dictionary"
	"caseflow/internal/stream"
	"caseflow/pkg/cases"
)

/*
TestNoOpEditYieldsNoMap verifies the projection round-trip property for the
identity case: staging a dictionary and converting without structural edits
(including a pure rename) reports that no mapping is needed.
*/
func TestNoOpEditYieldsNoMap(t *testing.T) {
	d := dictionary.New()
	d.MustCreateVar("a", 0)
	b := d.MustCreateVar("b", 4)

	st := NewStage(d)
	if err := d.Rename(b, "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if m := st.Map(); m != nil {
		t.Fatalf("identity edit produced a map: %v", m.src)
	}
}

/*
TestDeleteAndReorderMapping verifies that after deleting one variable and
reordering the rest, Execute reproduces each surviving variable's value at
its new position.
*/
func TestDeleteAndReorderMapping(t *testing.T) {
	d := dictionary.New()
	a := d.MustCreateVar("a", 0)
	b := d.MustCreateVar("b", 0)
	c := d.MustCreateVar("c", 3)

	src := cases.New(d.Proto())
	src.SetNum(a.DictIndex(), 1)
	src.SetNum(b.DictIndex(), 2)
	src.SetStr(c.DictIndex(), []byte("xyz"))

	st := NewStage(d)
	d.DeleteVars(b)
	d.ReorderVars(c, a)
	m := st.Map()
	if m == nil {
		t.Fatal("structural edit produced no map")
	}

	dst := m.Execute(src)
	if got := dst.Proto().Len(); got != 2 {
		t.Fatalf("projected width=%d; want 2", got)
	}
	if got := string(dst.Str(c.DictIndex())); got != "xyz" {
		t.Fatalf("c at new position=%q; want %q", got, "xyz")
	}
	if got := dst.Num(a.DictIndex()); got != 1 {
		t.Fatalf("a at new position=%v; want 1", got)
	}
}

/*
TestStageRejectsAddedVariable verifies the staging contract: adding a
variable to a staged dictionary is a defect caught at Map time.
*/
func TestStageRejectsAddedVariable(t *testing.T) {
	d := dictionary.New()
	d.MustCreateVar("a", 0)
	st := NewStage(d)
	d.MustCreateVar("late", 0)

	defer func() {
		if recover() == nil {
			t.Fatal("Map over staged dictionary with added variable did not panic")
		}
	}()
	st.Map()
}

/*
TestInputReaderProjectsStream verifies the input-side transducer: cases read
through the wrapper come out in the new layout, and a nil map is a true
pass-through.
*/
func TestInputReaderProjectsStream(t *testing.T) {
	d := dictionary.New()
	a := d.MustCreateVar("a", 0)
	b := d.MustCreateVar("b", 0)

	w := stream.NewMemWriter(d.Proto())
	c := cases.New(d.Proto())
	c.SetNum(0, 10)
	c.SetNum(1, 20)
	w.Write(c)

	st := NewStage(d)
	d.ReorderVars(b, a)
	m := st.Map()

	r := InputReader(m, w.MakeReader())
	out := r.Read()
	if got := out.Num(b.DictIndex()); got != 20 {
		t.Fatalf("b after projection=%v; want 20", got)
	}
	if got := out.Num(a.DictIndex()); got != 10 {
		t.Fatalf("a after projection=%v; want 10", got)
	}
	out.Unref()
	r.Close()

	plain := stream.NewMemWriter(d.Proto()).MakeReader()
	if got := InputReader(nil, plain); got != plain {
		t.Fatal("nil map InputReader is not pass-through")
	}
}

/*
TestByName verifies name-based mapping between two dictionaries with the
same variables at different positions.
*/
func TestByName(t *testing.T) {
	old := dictionary.New()
	old.MustCreateVar("x", 0)
	old.MustCreateVar("y", 2)

	new := dictionary.New()
	new.MustCreateVar("y", 2)
	new.MustCreateVar("x", 0)

	src := cases.New(old.Proto())
	src.SetNum(0, 3)
	src.SetStr(1, []byte("ab"))

	dst := ByName(old, new).Execute(src)
	if got := string(dst.Str(0)); got != "ab" {
		t.Fatalf("y=%q; want %q", got, "ab")
	}
	if got := dst.Num(1); got != 3 {
		t.Fatalf("x=%v; want 3", got)
	}
}
