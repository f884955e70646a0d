package spill

import (
	"testing"

	"caseflow/internal/config"
	"caseflow/pkg/cases"
	"caseflow/pkg/value"
)

func numCase(proto *cases.Prototype, vals ...float64) *cases.Case {
	c := cases.New(proto)
	for i, f := range vals {
		c.SetNum(i, f)
	}
	return c
}

func readNums(t *testing.T, w *Writer, idx int) []float64 {
	t.Helper()
	r := w.MakeReader()
	var got []float64
	for c := r.Read(); c != nil; c = r.Read() {
		got = append(got, c.Num(idx))
		c.Unref()
	}
	if !r.Close() {
		t.Fatalf("got reader error; want clean close")
	}
	return got
}

/* TestMemoryPhase verifies that cases below the workspace budget round-trip
without any spill file being created. */
func TestMemoryPhase(t *testing.T) {
	proto := cases.NewPrototype(0, 0)
	settings := config.DefaultSettings()
	settings.TempDir = t.TempDir()

	w := NewWriter(proto, settings)
	for i := 1; i <= 5; i++ {
		w.Write(numCase(proto, float64(i), float64(-i)))
	}
	if w.file != nil {
		t.Fatalf("got spill file; want pure memory phase under budget")
	}

	got := readNums(t, w, 0)
	want := []float64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v; want %v", got, want)
		}
	}
}

/* TestSpillPhase forces the writer over a tiny budget and verifies the
paged-out cases read back complete and in order. */
func TestSpillPhase(t *testing.T) {
	proto := cases.NewPrototype(0, 4)
	settings := config.DefaultSettings()
	settings.WorkspaceBytes = 1 // spill on the first case
	settings.TempDir = t.TempDir()

	w := NewWriter(proto, settings)
	for i := 1; i <= 20; i++ {
		c := cases.New(proto)
		c.SetNum(0, float64(i))
		c.SetStr(1, []byte("abcd"))
		w.Write(c)
	}
	if w.file == nil {
		t.Fatalf("got memory phase; want spill over budget")
	}
	if w.Error() {
		t.Fatalf("got writer error; want none")
	}

	r := w.MakeReader()
	var n int
	for c := r.Read(); c != nil; c = r.Read() {
		n++
		if c.Num(0) != float64(n) {
			t.Fatalf("got case %v at position %d; want %d", c.Num(0), n, n)
		}
		if string(c.Str(1)) != "abcd" {
			t.Fatalf("got string %q; want %q", c.Str(1), "abcd")
		}
		c.Unref()
	}
	if n != 20 {
		t.Fatalf("got %d cases; want %d", n, 20)
	}
	if !r.Close() {
		t.Fatalf("got reader error; want clean close")
	}
}

/* TestSpillReaderClone verifies cloned readers cursor independently over
the same spill file. */
func TestSpillReaderClone(t *testing.T) {
	proto := cases.NewPrototype(0)
	settings := config.DefaultSettings()
	settings.WorkspaceBytes = 1
	settings.TempDir = t.TempDir()

	w := NewWriter(proto, settings)
	for i := 1; i <= 4; i++ {
		w.Write(numCase(proto, float64(i)))
	}

	r := w.MakeReader()
	c := r.Read()
	if c.Num(0) != 1 {
		t.Fatalf("got %v; want 1", c.Num(0))
	}
	c.Unref()

	clone := r.Clone()
	c = clone.Read()
	if c.Num(0) != 2 {
		t.Fatalf("got %v; want clone positioned at 2", c.Num(0))
	}
	c.Unref()

	c = r.Read()
	if c.Num(0) != 2 {
		t.Fatalf("got %v; want original still at 2", c.Num(0))
	}
	c.Unref()

	if !clone.Close() || !r.Close() {
		t.Fatalf("got close error; want clean close of both cursors")
	}
}

/* TestEncodeRoundTrip verifies the binary case layout preserves
system-missing and string padding. */
func TestEncodeRoundTrip(t *testing.T) {
	proto := cases.NewPrototype(0, 3)
	c := cases.New(proto)
	c.SetNum(0, value.SysMis)
	c.SetStr(1, []byte("x"))

	got, ok := decode(proto, encode(proto, c))
	if !ok {
		t.Fatalf("got malformed encoding; want round trip")
	}
	if !got.Value(0).IsSysMis() {
		t.Fatalf("got %v; want system-missing", got.Num(0))
	}
	if string(got.Str(1)) != "x  " {
		t.Fatalf("got %q; want %q", got.Str(1), "x  ")
	}
	c.Unref()
	got.Unref()
}
