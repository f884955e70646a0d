package stream

import (
	"testing"

	"caseflow/pkg/cases"
)

func numCase(p *cases.Prototype, vals ...float64) *cases.Case {
	c := cases.New(p)
	for i, v := range vals {
		c.SetNum(i, v)
	}
	return c
}

func readNums(t *testing.T, r Reader) []float64 {
	t.Helper()
	var out []float64
	for c := r.Read(); c != nil; c = r.Read() {
		out = append(out, c.Num(0))
		c.Unref()
	}
	return out
}

/*
TestMemWriterRoundTrip verifies that MakeReader yields exactly the cases
written, in order, and that a cloned reader is an independent cursor.
*/
func TestMemWriterRoundTrip(t *testing.T) {
	p := cases.NewPrototype(0)
	w := NewMemWriter(p)
	for _, v := range []float64{1, 2, 3} {
		w.Write(numCase(p, v))
	}

	r := w.MakeReader()
	first := r.Read()
	if got := first.Num(0); got != 1 {
		t.Fatalf("first=%v; want 1", got)
	}
	first.Unref()

	cl := r.Clone()
	if got := readNums(t, r); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("rest=%v; want [2 3]", got)
	}
	if got := readNums(t, cl); len(got) != 2 || got[0] != 2 {
		t.Fatalf("clone rest=%v; want [2 3]", got)
	}
	if !r.Close() || !cl.Close() {
		t.Fatal("Close reported error on clean stream")
	}
}

/*
TestTranslateAppliesFunctionAndTeardownOnce verifies that the translator
rewrites every case, that clones share one teardown, and that the teardown
result folds into Close.
*/
func TestTranslateAppliesFunctionAndTeardownOnce(t *testing.T) {
	p := cases.NewPrototype(0)
	w := NewMemWriter(p)
	w.Write(numCase(p, 1))
	w.Write(numCase(p, 2))

	destroys := 0
	tr := Translate(w.MakeReader(), p, func(c *cases.Case) *cases.Case {
		c = c.Unshare()
		c.SetNum(0, c.Num(0)*10)
		return c
	}, func() bool {
		destroys++
		return true
	})

	cl := tr.Clone()
	if got := readNums(t, tr); got[0] != 10 || got[1] != 20 {
		t.Fatalf("translated=%v; want [10 20]", got)
	}
	if got := readNums(t, cl); got[0] != 10 {
		t.Fatalf("clone translated=%v; want [10 20]", got)
	}
	tr.Close()
	if destroys != 0 {
		t.Fatalf("teardown ran before last clone closed")
	}
	cl.Close()
	if destroys != 1 {
		t.Fatalf("teardown ran %d times; want 1", destroys)
	}
}

/*
TestTranslateWriter verifies that cases pass through the function on the way
into the sink and that a failing teardown taints the resulting reader.
*/
func TestTranslateWriter(t *testing.T) {
	p := cases.NewPrototype(0)
	sink := NewMemWriter(p)
	w := TranslateWriter(sink, p, func(c *cases.Case) *cases.Case {
		c = c.Unshare()
		c.SetNum(0, c.Num(0)+100)
		return c
	}, func() bool { return false })

	w.Write(numCase(p, 1))
	r := w.MakeReader()
	if !r.Error() {
		t.Fatal("failing teardown did not taint reader")
	}
	c := r.Read()
	if c == nil || c.Num(0) != 101 {
		t.Fatalf("translated write missing or wrong: %v", c)
	}
	c.Unref()
	if r.Close() {
		t.Fatal("Close()=true on tainted reader")
	}
}

/*
TestShimSlurpOutlivesSource verifies that after Slurp the shim serves the
full remaining stream from its buffer, and that clones work from the buffer.
*/
func TestShimSlurpOutlivesSource(t *testing.T) {
	p := cases.NewPrototype(0)
	w := NewMemWriter(p)
	for _, v := range []float64{1, 2, 3} {
		w.Write(numCase(p, v))
	}

	sh := NewShim(w.MakeReader())
	c := sh.Read()
	c.Unref()

	sh.Slurp()
	cl := sh.Clone()
	if got := readNums(t, sh); len(got) != 2 || got[0] != 2 {
		t.Fatalf("post-slurp rest=%v; want [2 3]", got)
	}
	if got := readNums(t, cl); len(got) != 2 || got[1] != 3 {
		t.Fatalf("clone rest=%v; want [2 3]", got)
	}
	if !sh.Close() {
		t.Fatal("Close reported error on clean shim")
	}
}

/*
TestDrain verifies that Drain consumes everything and reports the stream's
error state.
*/
func TestDrain(t *testing.T) {
	p := cases.NewPrototype(0)
	w := NewMemWriter(p)
	w.Write(numCase(p, 1))
	if !Drain(w.MakeReader()) {
		t.Fatal("Drain reported error on clean stream")
	}

	w2 := NewMemWriter(p)
	w2.SetError()
	if Drain(w2.MakeReader()) {
		t.Fatal("Drain missed writer error")
	}
}
