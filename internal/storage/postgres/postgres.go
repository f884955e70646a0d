// Package postgres reads cases from a PostgreSQL query using pgx v5.
//
// The query's columns must align positionally with the dictionary: numeric
// variables scan from numeric columns (NULL becomes system-missing), string
// variables from text columns (NULL becomes spaces). Rows are prefetched on
// a separate goroutine through a bounded channel so network latency overlaps
// with case processing; everything downstream of the returned reader stays
// single-threaded.
//
// The reader is wrapped in a buffering shim, since a live query cursor
// cannot be cloned.
package postgres

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"caseflow/internal/dictionary"
	"caseflow/internal/stream"
	"caseflow/pkg/cases"
	"caseflow/pkg/value"
)

// prefetchDepth bounds how many cases the fetch goroutine may run ahead.
const prefetchDepth = 64

// Config holds the connection settings for one query.
type Config struct {
	// DSN is the pgx connection string.
	DSN string
	// Query produces the rows; its columns must match the dictionary
	// positionally.
	Query string
}

// NewReader connects to the database and returns a reader over the query's
// rows as cases shaped by dict, plus a cleanup function releasing the
// connection pool. The cleanup must run after the reader is closed.
func NewReader(ctx context.Context, dict *dictionary.Dictionary, cfg Config) (stream.Reader, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: connect: %w", err)
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	r := &rowReader{
		proto:  dict.Proto(),
		ch:     make(chan *cases.Case, prefetchDepth),
		cancel: cancel,
	}
	g, gctx := errgroup.WithContext(fetchCtx)
	r.group = g
	g.Go(func() error {
		defer close(r.ch)
		return fetch(gctx, pool, cfg.Query, r.proto, r.ch)
	})

	cleanup := func() { pool.Close() }
	return stream.NewShim(r), cleanup, nil
}

// fetch runs the query and converts each row into a case.
func fetch(ctx context.Context, pool *pgxpool.Pool, query string, proto *cases.Prototype, out chan<- *cases.Case) error {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return fmt.Errorf("postgres: scan row: %w", err)
		}
		c, err := caseFromRow(proto, vals)
		if err != nil {
			return err
		}
		select {
		case out <- c:
		case <-ctx.Done():
			c.Unref()
			return ctx.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: rows: %w", err)
	}
	return nil
}

// caseFromRow converts one row's scanned values into a case.
func caseFromRow(proto *cases.Prototype, vals []any) (*cases.Case, error) {
	if len(vals) != proto.Len() {
		return nil, fmt.Errorf("postgres: row has %d columns; dictionary has %d", len(vals), proto.Len())
	}
	c := cases.New(proto)
	for i, v := range vals {
		if proto.Width(i) > 0 {
			s, err := stringColumn(v)
			if err != nil {
				c.Unref()
				return nil, fmt.Errorf("postgres: column %d: %w", i, err)
			}
			c.SetStr(i, []byte(s))
			continue
		}
		f, err := numericColumn(v)
		if err != nil {
			c.Unref()
			return nil, fmt.Errorf("postgres: column %d: %w", i, err)
		}
		c.SetNum(i, f)
	}
	return c, nil
}

func numericColumn(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return value.SysMis, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot use %T as a numeric variable", v)
	}
}

func stringColumn(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("cannot use %T as a string variable", v)
	}
}

// rowReader adapts the prefetch channel to the reader contract. It is
// always wrapped in a shim, which handles cloning by buffering.
type rowReader struct {
	proto  *cases.Prototype
	ch     chan *cases.Case
	group  *errgroup.Group
	cancel context.CancelFunc
	err    bool
	done   bool
	closed bool
}

func (r *rowReader) Proto() *cases.Prototype { return r.proto }

func (r *rowReader) Read() *cases.Case {
	if r.closed || r.err {
		return nil
	}
	c, ok := <-r.ch
	if !ok {
		r.finish()
		return nil
	}
	return c
}

// finish collects the fetch goroutine's result once the channel drains.
func (r *rowReader) finish() {
	if r.done {
		return
	}
	r.done = true
	if err := r.group.Wait(); err != nil && err != context.Canceled {
		log.Printf("postgres: read failed: %v", err)
		r.err = true
	}
}

func (r *rowReader) Clone() stream.Reader {
	panic("postgres: query reader is sequential")
}

func (r *rowReader) Error() bool { return r.err }

func (r *rowReader) Close() bool {
	if r.closed {
		return !r.err
	}
	r.closed = true
	r.cancel()
	for c := range r.ch {
		c.Unref()
	}
	r.finish()
	return !r.err
}
