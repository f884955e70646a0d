package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"caseflow/internal/config"
	"caseflow/internal/dataset"
	"caseflow/internal/dictionary"
	"caseflow/internal/storage/csvfile"
	"caseflow/internal/storage/mssql"
	"caseflow/internal/storage/postgres"
	"caseflow/internal/stream"
)

// run executes one pipeline: builds the dictionary and source, streams every
// case through the dataset's transformation machinery, commits, and writes
// the output if the pipeline asks for a file.
func run(ctx context.Context, name string, p *config.Pipeline, settings config.Settings, verbose bool) error {
	ds := dataset.New(name, settings)

	if err := buildDictionary(ds.Dict(), p.Dictionary); err != nil {
		return err
	}

	src, cleanup, err := buildSource(ctx, ds.Dict(), p.Source)
	if err != nil {
		return err
	}
	defer cleanup()
	ds.SetSource(src)

	if p.Filter != "" {
		ds.Dict().SetFilter(ds.Dict().Lookup(p.Filter))
	}
	if p.CaseLimit > 0 {
		ds.Dict().SetCaseLimit(p.CaseLimit)
	}
	if p.Lag > 0 {
		ds.NeedLag(p.Lag)
	}
	if p.Output.Discard {
		ds.DiscardOutput()
	}

	r := ds.Open()
	var seen int64
	for c := r.Read(); c != nil; c = r.Read() {
		seen++
		c.Unref()
	}
	r.Close()

	if !ds.Commit() {
		return fmt.Errorf("pipeline %s: procedure failed", name)
	}
	if verbose {
		log.Printf("pipeline %s: %d cases out, %d written", name, seen, ds.CasesWritten())
	}

	if p.Output.Path != "" && !p.Output.Discard {
		if err := writeOutput(ds, p.Output.Path); err != nil {
			return err
		}
	}
	return nil
}

// buildDictionary fills d from the declared variable specs.
func buildDictionary(d *dictionary.Dictionary, specs []config.VariableSpec) error {
	for _, vs := range specs {
		v, err := d.CreateVar(vs.Name, vs.Width)
		if err != nil {
			return err
		}
		v.SetLeave(vs.Leave)
		fc, err := formatClass(vs)
		if err != nil {
			return err
		}
		v.SetFormat(fc)
	}
	return nil
}

func formatClass(vs config.VariableSpec) (dictionary.FormatClass, error) {
	switch strings.ToLower(vs.Format) {
	case "string":
		return dictionary.FormatString, nil
	case "currency":
		return dictionary.FormatCurrency, nil
	case "datetime":
		return dictionary.FormatDateTime, nil
	case "", "plain":
		if vs.Width > 0 {
			return dictionary.FormatString, nil
		}
		return dictionary.FormatPlain, nil
	default:
		return 0, fmt.Errorf("variable %q: unknown format %q", vs.Name, vs.Format)
	}
}

// buildSource opens the configured case source. The returned cleanup runs
// after the reader is fully consumed and closed.
func buildSource(ctx context.Context, d *dictionary.Dictionary, src config.Source) (stream.Reader, func(), error) {
	switch src.Kind {
	case "csv":
		r, err := csvfile.NewReader(src.Path, d)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	case "postgres":
		return postgres.NewReader(ctx, d, postgres.Config{DSN: src.DSN, Query: src.Query})
	case "mssql":
		return mssql.NewReader(ctx, d, mssql.Config{DSN: src.DSN, Query: src.Query})
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// writeOutput drains the committed dataset's new source into a CSV file.
func writeOutput(ds *dataset.Dataset, path string) error {
	out := ds.StealSource()
	if out == nil {
		return fmt.Errorf("pipeline %s: no output to write", ds.Name())
	}
	defer out.Close()

	w, err := csvfile.NewWriter(path, ds.Dict())
	if err != nil {
		return err
	}
	for c := out.Read(); c != nil; c = out.Read() {
		w.Write(c)
	}
	if !out.Close() {
		w.Flush()
		return fmt.Errorf("pipeline %s: output stream failed", ds.Name())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return nil
}
