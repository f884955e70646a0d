// Package dataset implements the procedure orchestrator: it owns the
// dictionary, the data source, the transformation chains, and the lag ring,
// and drives cases through them one procedure at a time.
//
// Cases are read from the source, have their transformation variables
// initialized, pass through the permanent chain (which transforms them into
// the shape described by the permanent dictionary), are written to the sink,
// pass through the temporary chain, and are finally yielded to the consumer.
//
// A dataset runs one procedure at a time: Idle, then Streaming once Open
// returns a reader, then Drained once that reader is exhausted or closed,
// then Idle again after Commit. Opening outside Idle or committing outside
// Drained is a caller defect and panics.
package dataset

import (
	"time"

	"caseflow/internal/caseinit"
	"caseflow/internal/casemap"
	"caseflow/internal/config"
	"caseflow/internal/dictionary"
	"caseflow/internal/metrics"
	"caseflow/internal/storage/spill"
	"caseflow/internal/stream"
	"caseflow/internal/trns"
	"caseflow/pkg/cases"
)

type procState int

const (
	stateIdle procState = iota
	stateStreaming
	stateDrained
)

// Dataset binds a dictionary to a data source and the transformations
// pending against them.
type Dataset struct {
	name string

	dict          *dictionary.Dictionary
	permanentDict *dictionary.Dictionary // non-nil only under a temporary view
	source        stream.Reader
	ci            *caseinit.Init

	permanent   trns.Chain
	temporary   trns.Chain
	inTemporary bool
	stack       []*trns.Chain // nested chains for conditional/loop blocks

	orderVar      *dictionary.Variable
	sink          stream.Writer
	discardOutput bool

	nLag int
	lag  []*cases.Case // most recent last; holds one ref per case

	state        procState
	casesRead    int64
	casesWritten int64
	ok           bool
	shim         *stream.Shim
	openedAt     time.Time

	settings config.Settings
}

// New returns an empty dataset with the given settings. It has an empty
// dictionary and no source.
func New(name string, settings config.Settings) *Dataset {
	return &Dataset{
		name:     name,
		dict:     dictionary.New(),
		ci:       caseinit.New(),
		ok:       true,
		settings: settings,
	}
}

// Clone returns a dataset with the same data and dictionary as ds. ds must
// be idle with no transformations, no temporary view, and no frozen
// permanent dictionary.
func (ds *Dataset) Clone(name string) *Dataset {
	if ds.state != stateIdle || ds.permanent.Len() != 0 || ds.temporary.Len() != 0 ||
		ds.inTemporary || ds.permanentDict != nil || ds.sink != nil || len(ds.stack) != 0 {
		panic("dataset: Clone of dataset with procedure state")
	}
	n := &Dataset{
		name:     name,
		dict:     ds.dict.Clone(),
		ci:       ds.ci.Clone(),
		ok:       ds.ok,
		settings: ds.settings,
	}
	if ds.source != nil {
		n.source = ds.source.Clone()
	}
	return n
}

// Name returns the dataset's name.
func (ds *Dataset) Name() string { return ds.name }

// Dict returns the dataset's dictionary. Never nil, possibly empty.
func (ds *Dataset) Dict() *dictionary.Dictionary { return ds.dict }

// Source returns the reader the next procedure will consume, or nil.
func (ds *Dataset) Source() stream.Reader { return ds.source }

// HasSource reports whether a data source is attached.
func (ds *Dataset) HasSource() bool { return ds.source != nil }

// SetSource replaces the dataset's data with r, whose cases must match the
// dictionary's layout. Every slot is treated as pre-initialized by the new
// source. Returns false if r has already seen an error.
func (ds *Dataset) SetSource(r stream.Reader) bool {
	if ds.source != nil {
		ds.source.Close()
	}
	ds.source = r
	ds.ci.Clear()
	ds.ci.MarkPreinited(ds.dict)
	return r == nil || !r.Error()
}

// StealSource detaches and returns the data source, or nil.
func (ds *Dataset) StealSource() stream.Reader {
	r := ds.source
	ds.source = nil
	return r
}

// Clear discards the dictionary, the data, and all pending transformations.
func (ds *Dataset) Clear() {
	if ds.state != stateIdle {
		panic("dataset: Clear during procedure")
	}
	ds.dict.Clear()
	ds.nLag = 0
	if ds.source != nil {
		ds.source.Close()
		ds.source = nil
	}
	ds.cancelAllTransformations()
}

// DeleteVars removes the given variables from the dictionary and rewrites
// the source so its cases match the edited layout. Not legal with pending
// transformations or under a temporary view.
func (ds *Dataset) DeleteVars(vars ...*dictionary.Variable) {
	ds.editVars(func() { ds.dict.DeleteVars(vars...) })
}

// ReorderVars moves the given variables to the front of the dictionary and
// rewrites the source to match. Not legal with pending transformations or
// under a temporary view.
func (ds *Dataset) ReorderVars(vars ...*dictionary.Variable) {
	ds.editVars(func() { ds.dict.ReorderVars(vars...) })
}

func (ds *Dataset) editVars(edit func()) {
	if ds.inTemporary {
		panic("dataset: schema edit under temporary view")
	}
	if ds.HasTransformations() {
		panic("dataset: schema edit with pending transformations")
	}

	if ds.source == nil {
		edit()
		ds.ci.Clear()
		ds.ci.MarkPreinited(ds.dict)
		return
	}

	// Make the in-flight cases fully initialized for the current layout,
	// then project them into the edited layout.
	ds.ci.MarkForInit(ds.dict)
	ds.source = ds.ci.TranslateReader(ds.dict.Proto(), ds.source)
	ds.ci.Clear()
	ds.ci.MarkPreinited(ds.dict)

	stage := casemap.NewStage(ds.dict)
	edit()
	ds.source = casemap.InputReader(stage.Map(), ds.source)
	ds.ci.Clear()
	ds.ci.MarkPreinited(ds.dict)
}

// InProgress reports whether a procedure is open, that is, Open has been
// called but Commit has not.
func (ds *Dataset) InProgress() bool { return ds.state != stateIdle }

// CasesWritten returns the number of cases the current or most recent
// procedure wrote to its sink.
func (ds *Dataset) CasesWritten() int64 { return ds.casesWritten }

// NeedLag raises the lag depth for the next procedure to at least nBefore.
func (ds *Dataset) NeedLag(nBefore int) {
	if nBefore > ds.nLag {
		ds.nLag = nBefore
	}
}

// LaggedCase returns a borrowed reference to the case nBefore cases back
// from the current one, or nil if that many cases have not flowed yet.
// nBefore must be between 1 and the depth given to NeedLag.
func (ds *Dataset) LaggedCase(nBefore int) *cases.Case {
	if nBefore < 1 || nBefore > ds.nLag {
		panic("dataset: lag depth out of range")
	}
	if nBefore > len(ds.lag) {
		return nil
	}
	return ds.lag[len(ds.lag)-nBefore]
}

// Open opens the dataset for reading this procedure's cases, filtering out
// cases excluded by the dictionary's filter variable. Commit must be called
// when the returned reader has been consumed and closed.
func (ds *Dataset) Open() stream.Reader { return ds.OpenFiltering(true) }

// OpenFiltering is Open with explicit control over the filter variable:
// when filter is false every case is included regardless of it.
func (ds *Dataset) OpenFiltering(filter bool) stream.Reader {
	if ds.state != stateIdle {
		panic("dataset: procedure already open")
	}
	if len(ds.stack) != 0 {
		panic("dataset: open with unfinished nested transformations")
	}
	if ds.source == nil {
		panic("dataset: open without source")
	}

	ds.openedAt = time.Now()

	ds.ci.MarkForInit(ds.dict)
	ds.source = ds.ci.TranslateReader(ds.dict.Proto(), ds.source)

	// Finish up the collection of transformations.
	ds.addCaseLimitTrns()
	if filter {
		ds.addFilterTrns()
	}
	if !ds.inTemporary {
		ds.addMeasureLevelTrns(ds.dict)
	}

	// permanentDict describes the data right before it reaches the sink.
	if ds.permanentDict == nil {
		ds.permanentDict = ds.dict
	}

	if !ds.discardOutput {
		pd := ds.permanentDict.Clone()
		stage := casemap.NewStage(pd)
		pd.DeleteScratchVars()
		ds.sink = casemap.OutputWriter(
			stage.Map(), ds.permanentDict.Proto(),
			spill.NewWriter(pd.Proto(), ds.settings))
	} else {
		ds.sink = nil
	}

	ds.lag = make([]*cases.Case, 0, ds.nLag)

	ds.state = stateStreaming
	ds.casesRead = 0
	ds.casesWritten = 0
	ds.ok = true

	// The shim lets the returned reader outlive the procedure: Commit
	// slurps any unread cases into its buffer.
	ds.shim = stream.NewShim(&procReader{ds: ds, proto: ds.dict.Proto()})
	return ds.shim
}

// readOne is the per-case driver behind the procedure reader.
func (ds *Dataset) readOne() *cases.Case {
	if ds.state != stateStreaming {
		panic("dataset: read outside open procedure")
	}
	for {
		if !ds.ok {
			return nil
		}

		c := ds.source.Read()
		if c == nil {
			return nil
		}
		ds.casesRead++
		c = c.UnshareAndResize(ds.dict.Proto())
		ds.ci.RestoreLeft(c)

		// The permanent chain sees every source case, and carried-over
		// values are saved back even for cases it drops.
		caseNum := ds.casesWritten + 1
		res := ds.permanent.Execute(&c, caseNum)
		ds.ci.SaveLeft(c)
		if res != trns.Continue {
			c.Unref()
			if stop := ds.handleOutcome(res); stop {
				return nil
			}
			continue
		}

		ds.casesWritten++
		if ds.sink != nil {
			if ds.orderVar != nil {
				c = c.Unshare()
				c.SetNum(ds.orderVar.DictIndex(), float64(caseNum))
			}
			ds.sink.Write(c.Ref())
		}

		if ds.nLag > 0 {
			if len(ds.lag) >= ds.nLag {
				ds.lag[0].Unref()
				ds.lag = append(ds.lag[:0], ds.lag[1:]...)
			}
			ds.lag = append(ds.lag, c.Ref())
		}

		if ds.inTemporary && ds.temporary.Len() > 0 {
			res = ds.temporary.Execute(&c, ds.casesWritten)
			if res != trns.Continue {
				c.Unref()
				if stop := ds.handleOutcome(res); stop {
					return nil
				}
				continue
			}
		}

		return c
	}
}

// handleOutcome maps a non-Continue chain outcome onto the stream: whether
// to end it, and the sustained failure flag. DropCase just skips the case.
// Break escaping to this level means a looping construct leaked it, which
// is as fatal as an explicit Error. EndCase and EndFile end the stream
// without failing it.
func (ds *Dataset) handleOutcome(res trns.Result) (stop bool) {
	switch res {
	case trns.DropCase:
		return false
	case trns.Error, trns.Break:
		ds.ok = false
		return true
	default: // EndCase, EndFile
		return true
	}
}

// procReader adapts the per-case driver to the stream.Reader contract. It
// always sits under a Shim, which serves clones from its own buffer, so the
// reader itself is strictly sequential.
type procReader struct {
	ds     *Dataset
	proto  *cases.Prototype
	closed bool
}

func (p *procReader) Proto() *cases.Prototype { return p.proto }

func (p *procReader) Read() *cases.Case {
	if p.closed {
		return nil
	}
	return p.ds.readOne()
}

func (p *procReader) Clone() stream.Reader {
	panic("dataset: procedure reader is sequential")
}

func (p *procReader) Error() bool { return !p.ds.ok }

// Close drains the rest of the stream so the permanent chain's side effects
// happen for every input case and the sink receives everything it should,
// then releases the source and moves the procedure to the drained state.
func (p *procReader) Close() bool {
	if p.closed {
		return p.ds.ok
	}
	for c := p.ds.readOne(); c != nil; c = p.ds.readOne() {
		c.Unref()
	}
	p.closed = true

	ds := p.ds
	ds.state = stateDrained
	ds.shim = nil
	if ds.source != nil {
		ds.ok = ds.source.Close() && ds.ok
		ds.source = nil
	}
	ds.SetSource(nil)
	return ds.ok
}

// Commit finishes the procedure: the sink's output becomes the new source,
// the temporary view is undone (its pre-view dictionary becomes permanent
// again), scratch variables are deleted, and the lifecycle manager is reset
// against the new layout. Only legal once the procedure reader has been
// fully read or closed.
//
// Returns false if the source, any transformation teardown, or the sink
// signaled an error. A temporary-chain error makes the result false even
// though the replacement data may be intact.
func (ds *Dataset) Commit() bool {
	if ds.shim != nil {
		ds.shim.Slurp()
	}
	if ds.state != stateDrained {
		panic("dataset: Commit before procedure drained")
	}
	ds.state = stateIdle

	for _, c := range ds.lag {
		c.Unref()
	}
	ds.lag = nil

	// Dictionary from before the temporary view becomes permanent.
	ds.CancelTemporaryTransformations()
	ok := ds.cancelAllTransformations() && ds.ok

	if !ds.discardOutput {
		ds.dict.DeleteScratchVars()
		if ds.sink != nil {
			ok = !ds.sink.Error() && ok
			ds.source = ds.sink.MakeReader()
		}
	} else {
		ds.source = nil
		ds.discardOutput = false
	}
	ds.sink = nil

	ds.ci.Clear()
	ds.ci.MarkPreinited(ds.dict)

	ds.dict.ClearVectors()
	ds.permanentDict = nil
	ds.orderVar = nil

	metrics.CountCases(ds.name, "read", ds.casesRead)
	metrics.CountCases(ds.name, "written", ds.casesWritten)
	metrics.CountCases(ds.name, "dropped", ds.casesRead-ds.casesWritten)
	metrics.RecordProcedure(ds.name, ok, time.Since(ds.openedAt))
	return ok
}

// ProcExecute runs any pending transformations to completion, discarding the
// procedure's view of the cases. When there are no transformations at all it
// shortcuts without touching the source.
func (ds *Dataset) ProcExecute() bool {
	if ds.permanent.Len() == 0 &&
		(!ds.inTemporary || ds.temporary.Len() == 0) {
		ds.nLag = 0
		ds.discardOutput = false
		ds.dict.SetCaseLimit(0)
		ds.dict.ClearVectors()
		return true
	}

	ok := ds.Open().Close()
	return ds.Commit() && ok
}

// AddTransformation appends t to the active chain: the top of the nested
// stack if one is open, else the temporary chain under a temporary view,
// else the permanent chain.
func (ds *Dataset) AddTransformation(t trns.Transformation) {
	switch {
	case len(ds.stack) > 0:
		ds.stack[len(ds.stack)-1].Append(t)
	case ds.inTemporary:
		ds.temporary.Append(t)
	default:
		ds.permanent.Append(t)
	}
}

// InTemporaryTransformations reports whether the next AddTransformation
// will add a temporary transformation.
func (ds *Dataset) InTemporaryTransformations() bool { return ds.inTemporary }

// HasTransformations reports whether any permanent or temporary
// transformations are pending.
func (ds *Dataset) HasTransformations() bool {
	return ds.permanent.Len() > 0 || ds.temporary.Len() > 0
}

// StartTemporaryTransformations marks the start of the temporary view.
// Transformations added afterward are undone at commit. The dictionary as
// of this moment is frozen as the permanent dictionary.
func (ds *Dataset) StartTemporaryTransformations() {
	if len(ds.stack) != 0 {
		panic("dataset: temporary view inside nested transformations")
	}
	if ds.inTemporary {
		return
	}
	ds.addCaseLimitTrns()
	ds.permanentDict = ds.dict.Clone()
	ds.addMeasureLevelTrns(ds.permanentDict)
	ds.inTemporary = true
}

// MakeTemporaryTransformationsPermanent converts the temporary chain, if
// any, into permanent transformations. Returns true if anything changed.
func (ds *Dataset) MakeTemporaryTransformationsPermanent() bool {
	if !ds.inTemporary {
		return false
	}
	// The guesser frozen against the pre-view dictionary is obsolete now
	// that the view's schema is the real one.
	ds.cancelMeasureLevelTrns()
	ds.permanent.Splice(&ds.temporary)
	ds.inTemporary = false
	ds.permanentDict = nil
	return true
}

// CancelTemporaryTransformations drops the temporary chain, if any, and
// restores the pre-view dictionary as the live one. Returns true if
// anything changed.
func (ds *Dataset) CancelTemporaryTransformations() bool {
	if !ds.inTemporary {
		return false
	}
	if !ds.temporary.Clear() {
		ds.ok = false
	}
	ds.dict = ds.permanentDict
	ds.permanentDict = nil
	ds.inTemporary = false
	return true
}

// cancelAllTransformations clears every chain, running teardowns, and
// reports whether they all succeeded.
func (ds *Dataset) cancelAllTransformations() bool {
	if ds.state != stateIdle {
		panic("dataset: cancel transformations during procedure")
	}
	ok := ds.permanent.Clear()
	ok = ds.temporary.Clear() && ok
	ds.inTemporary = false
	for _, ch := range ds.stack {
		ok = ch.Clear() && ok
	}
	ds.stack = nil
	return ok
}

// PushTransformations opens a fresh chain as the target of
// AddTransformation, for nested syntactic blocks.
func (ds *Dataset) PushTransformations() {
	ds.stack = append(ds.stack, &trns.Chain{})
}

// PopTransformations closes the innermost nested chain and moves its steps
// into chain.
func (ds *Dataset) PopTransformations(chain *trns.Chain) {
	if len(ds.stack) == 0 {
		panic("dataset: PopTransformations without a pushed chain")
	}
	top := ds.stack[len(ds.stack)-1]
	ds.stack = ds.stack[:len(ds.stack)-1]
	chain.Splice(top)
}

// AddPermanentOrderingTransformation creates a numeric variable $ORDER that
// records each case's position in the permanent output, so a later sort can
// recover the original order. Under a temporary view the stamp is also made
// visible through the view via a prepended temporary step.
func (ds *Dataset) AddPermanentOrderingTransformation() *dictionary.Variable {
	d := ds.dict
	if ds.permanentDict != nil {
		d = ds.permanentDict
	}
	orderVar := d.MustCreateVar("$ORDER", 0)
	ds.orderVar = orderVar

	if ds.permanentDict != nil {
		viewVar := ds.dict.MustCreateVar("$ORDER", 0)
		ds.temporary.Prepend(trns.Func{
			Label: "ordering",
			Fn: func(c **cases.Case, caseNum int64) trns.Result {
				*c = (*c).Unshare()
				(*c).SetNum(viewVar.DictIndex(), float64(caseNum))
				return trns.Continue
			},
		})
	}
	return orderVar
}

// DiscardOutput causes the next procedure's output to be thrown away
// instead of becoming the input of the one after it.
func (ds *Dataset) DiscardOutput() { ds.discardOutput = true }

// EndOfCommand checks whether the dataset's source has been corrupted by an
// I/O error; if so it discards the dataset's contents and returns false.
func (ds *Dataset) EndOfCommand() bool {
	if ds.source != nil && ds.source.Error() {
		ds.Clear()
		return false
	}
	return true
}

// addCaseLimitTrns appends a transformation limiting the number of cases
// that may pass, if the dictionary carries a case limit; the limit is
// consumed.
func (ds *Dataset) addCaseLimitTrns() {
	limit := ds.dict.CaseLimit()
	if limit == 0 {
		return
	}
	remaining := limit
	ds.AddTransformation(trns.Func{
		Label: "case limit",
		Fn: func(_ **cases.Case, _ int64) trns.Result {
			if remaining > 0 {
				remaining--
				return trns.Continue
			}
			return trns.DropCase
		},
	})
	ds.dict.SetCaseLimit(0)
}

// addFilterTrns appends a temporary transformation dropping cases whose
// filter-variable value is zero or missing, if a filter variable is set.
func (ds *Dataset) addFilterTrns() {
	fv := ds.dict.Filter()
	if fv == nil {
		return
	}
	ds.StartTemporaryTransformations()
	ds.AddTransformation(trns.Func{
		Label: "FILTER",
		Fn: func(c **cases.Case, _ int64) trns.Result {
			f := (*c).Num(fv.DictIndex())
			if f != 0 && !fv.IsNumMissing(f) {
				return trns.Continue
			}
			return trns.DropCase
		},
	})
}
