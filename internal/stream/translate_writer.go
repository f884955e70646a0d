package stream

import "caseflow/pkg/cases"

// writeTranslator passes every case written to it through a function before
// handing it to an underlying sink.
type writeTranslator struct {
	sub     Writer
	proto   *cases.Prototype // shape accepted from callers
	fn      TranslateFunc
	destroy func() bool
	ok      bool
}

// TranslateWriter wraps sub so that every case written is first passed
// through fn. proto is the shape the returned writer accepts. destroy, if
// non-nil, runs when the writer is consumed by MakeReader and its result
// folds into the resulting reader's error flag.
func TranslateWriter(sub Writer, proto *cases.Prototype, fn TranslateFunc, destroy func() bool) Writer {
	return &writeTranslator{sub: sub, proto: proto, fn: fn, destroy: destroy, ok: true}
}

func (w *writeTranslator) Proto() *cases.Prototype { return w.proto }

func (w *writeTranslator) Write(c *cases.Case) { w.sub.Write(w.fn(c)) }

func (w *writeTranslator) Error() bool { return !w.ok || w.sub.Error() }

func (w *writeTranslator) MakeReader() Reader {
	if w.destroy != nil {
		w.ok = w.destroy() && w.ok
	}
	r := w.sub.MakeReader()
	if !w.ok {
		return failedReader{r}
	}
	return r
}

// Failed decorates r as having already seen an error: its Error reports
// true and its Close reports failure, while reads pass through.
func Failed(r Reader) Reader { return failedReader{r} }

// failedReader decorates a reader with a pre-existing failure.
type failedReader struct {
	Reader
}

func (f failedReader) Error() bool { return true }

func (f failedReader) Close() bool {
	f.Reader.Close()
	return false
}

func (f failedReader) Clone() Reader { return failedReader{f.Reader.Clone()} }
