// Package csvfile reads and writes cases as CSV files for a dictionary.
//
// The first record is a header of variable names. Numeric values are
// written in shortest round-trip form, system-missing as an empty field;
// string values are written with trailing spaces trimmed and read back
// padded to the variable's width.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"caseflow/internal/dictionary"
	"caseflow/internal/stream"
	"caseflow/pkg/cases"
	"caseflow/pkg/value"
)

// NewReader opens a CSV file whose columns match dict positionally. The
// header record is checked against the dictionary's variable names.
func NewReader(path string, dict *dictionary.Dictionary) (stream.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvfile: open: %w", err)
	}
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = dict.Len()

	header, err := cr.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvfile: read header: %w", err)
	}
	for i, name := range header {
		if !strings.EqualFold(name, dict.Var(i).Name()) {
			f.Close()
			return nil, fmt.Errorf("csvfile: header column %d is %q; dictionary has %q",
				i, name, dict.Var(i).Name())
		}
	}

	return stream.NewShim(&fileReader{proto: dict.Proto(), f: f, cr: cr, path: path}), nil
}

// fileReader yields one case per CSV record. Always shim-wrapped: a file
// cursor is sequential.
type fileReader struct {
	proto  *cases.Prototype
	f      *os.File
	cr     *csv.Reader
	path   string
	err    bool
	closed bool
}

func (r *fileReader) Proto() *cases.Prototype { return r.proto }

func (r *fileReader) Read() *cases.Case {
	if r.closed || r.err {
		return nil
	}
	rec, err := r.cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		log.Printf("csvfile: %s: %v", r.path, err)
		r.err = true
		return nil
	}

	c := cases.New(r.proto)
	for i, field := range rec {
		if r.proto.Width(i) > 0 {
			c.SetStr(i, []byte(field))
			continue
		}
		if field == "" {
			c.SetNum(i, value.SysMis)
			continue
		}
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			log.Printf("csvfile: %s: bad numeric field %q", r.path, field)
			r.err = true
			c.Unref()
			return nil
		}
		c.SetNum(i, f)
	}
	return c
}

func (r *fileReader) Clone() stream.Reader {
	panic("csvfile: file reader is sequential")
}

func (r *fileReader) Error() bool { return r.err }

func (r *fileReader) Close() bool {
	if r.closed {
		return !r.err
	}
	r.closed = true
	if err := r.f.Close(); err != nil {
		log.Printf("csvfile: close %s: %v", r.path, err)
		r.err = true
	}
	return !r.err
}

// Writer writes cases to a CSV file.
type Writer struct {
	dict *dictionary.Dictionary
	path string
	f    *os.File
	cw   *csv.Writer
	err  bool
	done bool
}

// NewWriter creates path (truncating it) and writes the header record.
func NewWriter(path string, dict *dictionary.Dictionary) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csvfile: create: %w", err)
	}
	cw := csv.NewWriter(f)

	header := make([]string, dict.Len())
	for i := range header {
		header[i] = dict.Var(i).Name()
	}
	if err := cw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("csvfile: write header: %w", err)
	}
	return &Writer{dict: dict, path: path, f: f, cw: cw}, nil
}

func (w *Writer) Proto() *cases.Prototype { return w.dict.Proto() }

// Write records c as one CSV record, taking ownership of the caller's
// reference.
func (w *Writer) Write(c *cases.Case) {
	if w.done {
		panic("csvfile: Write to consumed writer")
	}
	defer c.Unref()
	if w.err {
		return
	}

	proto := w.dict.Proto()
	rec := make([]string, proto.Len())
	for i := range rec {
		if proto.Width(i) > 0 {
			rec[i] = strings.TrimRight(string(c.Str(i)), " ")
			continue
		}
		if c.Value(i).IsSysMis() {
			continue // empty field
		}
		rec[i] = strconv.FormatFloat(c.Num(i), 'g', -1, 64)
	}
	if err := w.cw.Write(rec); err != nil {
		log.Printf("csvfile: write %s: %v", w.path, err)
		w.err = true
	}
}

func (w *Writer) Error() bool { return w.err }

// Flush commits buffered records to the file and closes it. The writer
// accepts no more cases.
func (w *Writer) Flush() error {
	if w.done {
		return nil
	}
	w.done = true
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		w.err = true
		w.f.Close()
		return fmt.Errorf("csvfile: flush %s: %w", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		w.err = true
		return fmt.Errorf("csvfile: close %s: %w", w.path, err)
	}
	return nil
}

// MakeReader finishes the file and reopens it as a reader over exactly the
// cases written.
func (w *Writer) MakeReader() stream.Reader {
	if err := w.Flush(); err != nil {
		log.Printf("%v", err)
	}
	r, err := NewReader(w.path, w.dict)
	if err != nil {
		log.Printf("csvfile: reopen: %v", err)
		empty := stream.NewMemWriter(w.dict.Proto())
		return stream.Failed(empty.MakeReader())
	}
	if w.err {
		return stream.Failed(r)
	}
	return r
}
