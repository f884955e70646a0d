package caseinit

import (
	"testing"

	"caseflow/internal/dictionary"
	"caseflow/internal/stream"
	"caseflow/pkg/cases"
)

func twoVarDict(t *testing.T) (*dictionary.Dictionary, *dictionary.Variable, *dictionary.Variable) {
	t.Helper()
	d := dictionary.New()
	a := d.MustCreateVar("a", 0)
	b := d.MustCreateVar("b", 0)
	b.SetLeave(true)
	return d, a, b
}

/*
TestPartitionTotality verifies that against an empty pre-initialized set,
MarkForInit classifies every variable into exactly one of reset or
carried-over.
*/
func TestPartitionTotality(t *testing.T) {
	d := dictionary.New()
	d.MustCreateVar("n", 0)
	d.MustCreateVar("s", 4)
	left := d.MustCreateVar("l", 0)
	left.SetLeave(true)
	d.MustCreateVar("#scratch", 0) // scratch implies carry-over

	ci := New()
	ci.MarkForInit(d)

	if got := ci.ReinitCount(); got != 2 {
		t.Fatalf("reset slots=%d; want 2", got)
	}
	if got := len(ci.left.slots); got != 2 {
		t.Fatalf("carried-over slots=%d; want 2", got)
	}
	seen := map[int]int{}
	for _, s := range ci.reinit.slots {
		seen[s.index]++
	}
	for _, s := range ci.left.slots {
		seen[s.index]++
	}
	for i := 0; i < d.Len(); i++ {
		if seen[i] != 1 {
			t.Fatalf("slot %d classified %d times; want 1", i, seen[i])
		}
	}
}

/*
TestPreinitedExcluded verifies that slots marked pre-initialized are left
out of both lifecycle sets.
*/
func TestPreinitedExcluded(t *testing.T) {
	d, _, _ := twoVarDict(t)
	ci := New()
	ci.MarkPreinited(d)
	ci.MarkForInit(d)
	if ci.ReinitCount() != 0 || len(ci.left.slots) != 0 {
		t.Fatalf("pre-initialized slots were classified: reinit=%d left=%d",
			ci.ReinitCount(), len(ci.left.slots))
	}
}

/*
TestCarryOverPersistence verifies the carry-over cycle: a left variable
keeps its value across SaveLeft then RestoreLeft on a fresh case, while a
reset variable reverts to system-missing regardless of prior content.
*/
func TestCarryOverPersistence(t *testing.T) {
	d, a, b := twoVarDict(t)
	ci := New()
	ci.MarkForInit(d)

	c1 := cases.New(d.Proto())
	ci.InitCase(c1)
	if !c1.Value(a.DictIndex()).IsSysMis() {
		t.Fatal("reset slot not system-missing after InitCase")
	}
	ci.RestoreLeft(c1)
	if got := c1.Num(b.DictIndex()); got != 0 {
		t.Fatalf("first-case carried-over=%v; want 0", got)
	}

	c1.SetNum(a.DictIndex(), 5)
	c1.SetNum(b.DictIndex(), 9)
	ci.SaveLeft(c1)

	c2 := cases.New(d.Proto())
	c2.SetNum(a.DictIndex(), 77) // stale content a reset must clobber
	ci.InitCase(c2)
	ci.RestoreLeft(c2)
	if !c2.Value(a.DictIndex()).IsSysMis() {
		t.Fatal("reset slot kept stale content")
	}
	if got := c2.Num(b.DictIndex()); got != 9 {
		t.Fatalf("restored carried-over=%v; want 9", got)
	}
}

/*
TestTranslateReaderPassThrough verifies that when the prototype already
matches and nothing needs reinitialization, the wrapper degrades to the
wrapped reader itself.
*/
func TestTranslateReaderPassThrough(t *testing.T) {
	d, _, _ := twoVarDict(t)
	ci := New()
	ci.MarkPreinited(d)
	ci.MarkForInit(d) // everything pre-initialized: nothing to reinit

	w := stream.NewMemWriter(d.Proto())
	r := w.MakeReader()
	if got := ci.TranslateReader(d.Proto(), r); got != r {
		t.Fatal("no-op wrapper did not degrade to pass-through")
	}
}

/*
TestTranslateReaderResizesAndInits verifies that the wrapper resizes each
case to the target prototype and applies the reset values, leaving other
slots alone.
*/
func TestTranslateReaderResizesAndInits(t *testing.T) {
	d, a, b := twoVarDict(t)
	ci := New()
	ci.MarkForInit(d) // a reset, b carried over

	small := cases.NewPrototype(0) // source knows only slot 0
	w := stream.NewMemWriter(small)
	c := cases.New(small)
	c.SetNum(0, 123)
	w.Write(c)

	tr := ci.TranslateReader(d.Proto(), w.MakeReader())
	out := tr.Read()
	if out == nil {
		t.Fatal("translated reader yielded nothing")
	}
	if got := out.Proto().Len(); got != 2 {
		t.Fatalf("translated width=%d; want 2", got)
	}
	if !out.Value(a.DictIndex()).IsSysMis() {
		t.Fatal("reset slot not initialized by wrapper")
	}
	if got := out.Num(b.DictIndex()); got != 0 {
		t.Fatalf("carried-over slot=%v; want fresh 0", got)
	}
	out.Unref()
	if !tr.Close() {
		t.Fatal("Close reported error")
	}
}
