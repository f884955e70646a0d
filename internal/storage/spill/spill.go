// Package spill implements an auto-paging case sink. Cases accumulate in
// memory until they exceed the configured workspace budget, then the whole
// buffer pages out to a temporary SQLite database and further writes go
// straight to disk. Reading the sink back spans both phases transparently.
//
// SQLite is used as the page store rather than a bespoke file format: one
// table of binary-encoded cases keyed by sequence number gives durable,
// seekable storage and lets cloned readers cursor independently over the
// same file.
package spill

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"

	"golang.org/x/sys/unix"

	// SQLite driver for the spill file.
	_ "modernc.org/sqlite"

	"caseflow/internal/config"
	"caseflow/internal/stream"
	"caseflow/pkg/cases"
)

// caseOverheadBytes approximates the per-case bookkeeping cost counted
// against the workspace budget, on top of the encoded values.
const caseOverheadBytes = 48

// Writer is an auto-paging stream.Writer.
type Writer struct {
	proto    *cases.Prototype
	settings config.Settings

	mem      []*cases.Case // memory phase; nil after spilling
	memBytes int64

	file *spillFile // non-nil once spilled
	n    int64      // cases written to the spill file

	err  bool
	done bool
}

// NewWriter returns an empty sink for cases shaped by proto. settings
// supplies the workspace budget and the spill directory.
func NewWriter(proto *cases.Prototype, settings config.Settings) *Writer {
	return &Writer{proto: proto, settings: settings}
}

func (w *Writer) Proto() *cases.Prototype { return w.proto }

// Write appends c, taking ownership of the caller's reference. Once the
// writer has failed, further cases are dropped.
func (w *Writer) Write(c *cases.Case) {
	if w.done {
		panic("spill: Write to consumed writer")
	}
	if c.Proto().Len() < w.proto.Len() || !c.Proto().Conformable(w.proto) {
		panic("spill: case shape does not match writer prototype")
	}
	if w.err {
		c.Unref()
		return
	}
	if c.Proto().Len() > w.proto.Len() {
		c = c.UnshareAndResize(w.proto)
	}

	if w.file == nil {
		w.mem = append(w.mem, c)
		w.memBytes += encodedSize(w.proto) + caseOverheadBytes
		if w.memBytes > w.settings.WorkspaceBytes {
			w.spill()
		}
		return
	}

	w.writeToFile(c)
	c.Unref()
}

func (w *Writer) Error() bool { return w.err }

// MakeReader converts the sink into a reader over exactly the cases
// written, consuming the writer.
func (w *Writer) MakeReader() stream.Reader {
	if w.done {
		panic("spill: MakeReader on consumed writer")
	}
	w.done = true

	if w.file == nil {
		r := stream.NewReader(w.proto, w.mem)
		w.mem = nil
		if w.err {
			return stream.Failed(r)
		}
		return r
	}

	r := stream.Reader(&fileReader{file: w.file, proto: w.proto, n: w.n})
	if w.err {
		return stream.Failed(r)
	}
	return r
}

// spill moves the memory buffer into a fresh temporary SQLite database and
// switches the writer to its disk phase. Failures mark the writer, never
// panic: running out of disk is an I/O error like any other.
func (w *Writer) spill() {
	dir := w.settings.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	if free, err := freeSpace(dir); err == nil && free < 2*uint64(w.settings.WorkspaceBytes) {
		log.Printf("spill: %s has %d bytes free, not enough to page out workspace", dir, free)
		w.fail()
		return
	}

	f, err := os.CreateTemp(dir, "caseflow-spill-*.db")
	if err != nil {
		log.Printf("spill: create temp file: %v", err)
		w.fail()
		return
	}
	path := f.Name()
	f.Close()

	sf, err := openSpillFile(path)
	if err != nil {
		log.Printf("spill: %v", err)
		os.Remove(path)
		w.fail()
		return
	}
	w.file = sf

	for _, c := range w.mem {
		w.writeToFile(c)
		c.Unref()
	}
	w.mem = nil
	w.memBytes = 0
}

func (w *Writer) writeToFile(c *cases.Case) {
	if w.err {
		return
	}
	if err := w.file.insert(w.n, encode(w.proto, c)); err != nil {
		log.Printf("spill: write case: %v", err)
		w.err = true
		return
	}
	w.n++
}

// fail marks the writer failed and releases the memory buffer.
func (w *Writer) fail() {
	w.err = true
	for _, c := range w.mem {
		c.Unref()
	}
	w.mem = nil
}

// freeSpace returns the free bytes on the filesystem containing dir.
func freeSpace(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// spillFile is one temporary on-disk page store, shared between the writer
// that filled it and every reader cursoring over it. The backing file is
// removed when the last holder releases it.
type spillFile struct {
	db   *sql.DB
	path string
	refs int
}

func openSpillFile(path string) (*spillFile, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE cases (seq INTEGER PRIMARY KEY, data BLOB NOT NULL)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("create page table: %w", err)
	}
	return &spillFile{db: db, path: path, refs: 1}, nil
}

func (sf *spillFile) insert(seq int64, data []byte) error {
	_, err := sf.db.Exec("INSERT INTO cases (seq, data) VALUES (?, ?)", seq, data)
	return err
}

func (sf *spillFile) ref() *spillFile {
	sf.refs++
	return sf
}

func (sf *spillFile) release() {
	sf.refs--
	if sf.refs > 0 {
		return
	}
	if err := sf.db.Close(); err != nil {
		log.Printf("spill: close %s: %v", sf.path, err)
	}
	if err := os.Remove(sf.path); err != nil {
		log.Printf("spill: remove %s: %v", sf.path, err)
	}
}

// fileReader cursors over a spill file by sequence number. Clones share the
// file but not the position.
type fileReader struct {
	file   *spillFile
	proto  *cases.Prototype
	pos    int64
	n      int64
	err    bool
	closed bool
}

func (r *fileReader) Proto() *cases.Prototype { return r.proto }

func (r *fileReader) Read() *cases.Case {
	if r.closed || r.err || r.pos >= r.n {
		return nil
	}
	var data []byte
	err := r.file.db.QueryRow(
		"SELECT data FROM cases WHERE seq = ?", r.pos).Scan(&data)
	if err != nil {
		log.Printf("spill: read case %d: %v", r.pos, err)
		r.err = true
		return nil
	}
	c, ok := decode(r.proto, data)
	if !ok {
		log.Printf("spill: case %d has malformed encoding", r.pos)
		r.err = true
		return nil
	}
	r.pos++
	return c
}

func (r *fileReader) Clone() stream.Reader {
	if r.closed {
		panic("spill: Clone of closed reader")
	}
	return &fileReader{file: r.file.ref(), proto: r.proto, pos: r.pos, n: r.n, err: r.err}
}

func (r *fileReader) Error() bool { return r.err }

func (r *fileReader) Close() bool {
	if r.closed {
		return !r.err
	}
	r.closed = true
	r.file.release()
	return !r.err
}

// encodedSize returns the number of bytes one case shaped by proto encodes
// to: 8 bytes per numeric value, the width per string value.
func encodedSize(proto *cases.Prototype) int64 {
	var n int64
	for i := 0; i < proto.Len(); i++ {
		if w := proto.Width(i); w > 0 {
			n += int64(w)
		} else {
			n += 8
		}
	}
	return n
}

// encode flattens c into the fixed-size binary layout encodedSize describes.
func encode(proto *cases.Prototype, c *cases.Case) []byte {
	buf := make([]byte, 0, encodedSize(proto))
	for i := 0; i < proto.Len(); i++ {
		if proto.Width(i) > 0 {
			buf = append(buf, c.Str(i)...)
		} else {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(c.Num(i)))
			buf = append(buf, b[:]...)
		}
	}
	return buf
}

// decode rebuilds a case from its binary layout. It reports false if data
// is not exactly the expected length.
func decode(proto *cases.Prototype, data []byte) (*cases.Case, bool) {
	if int64(len(data)) != encodedSize(proto) {
		return nil, false
	}
	c := cases.New(proto)
	off := 0
	for i := 0; i < proto.Len(); i++ {
		if w := proto.Width(i); w > 0 {
			c.SetStr(i, data[off:off+w])
			off += w
		} else {
			c.SetNum(i, math.Float64frombits(binary.LittleEndian.Uint64(data[off:off+8])))
			off += 8
		}
	}
	return c, true
}
