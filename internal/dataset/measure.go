package dataset

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"

	"caseflow/internal/dictionary"
	"caseflow/internal/stream"
	"caseflow/internal/trns"
	"caseflow/pkg/cases"
)

// mgVar tracks the evidence gathered for one variable whose measurement
// level is still unknown: the distinct non-negative integer values seen so
// far, as a hashed set, and whether any of them was below 10.
type mgVar struct {
	v        *dictionary.Variable
	seen     map[uint64]struct{}
	sawSmall bool
}

// addValue folds one observed value in. It returns Scale as soon as the
// variable proves continuous (a negative, a non-integer, or enough distinct
// values), or Unknown while the question is still open. Missing values
// contribute nothing.
func (m *mgVar) addValue(f float64, scaleMin int) dictionary.Measure {
	if m.v.IsNumMissing(f) {
		return dictionary.MeasureUnknown
	}
	if f < 0 || f != math.Floor(f) {
		return dictionary.MeasureScale
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	h := xxh3.Hash(buf[:])
	if _, ok := m.seen[h]; ok {
		return dictionary.MeasureUnknown
	}
	m.seen[h] = struct{}{}
	if f < 10 {
		m.sawSmall = true
	}
	if len(m.seen) >= scaleMin {
		return dictionary.MeasureScale
	}
	return dictionary.MeasureUnknown
}

// interpret classifies the variable once the sampling window closes: small
// code-like values (or no data at all) mean nominal, anything else scale.
func (m *mgVar) interpret() dictionary.Measure {
	if len(m.seen) == 0 || m.sawSmall {
		return dictionary.MeasureNominal
	}
	return dictionary.MeasureScale
}

// MeasureGuesser assigns measurement levels to variables that do not have
// one, based on the data that flows past it.
type MeasureGuesser struct {
	vars     []*mgVar
	scaleMin int
}

// NewMeasureGuesser scans d for variables with an unknown measurement
// level. Those whose display format implies a level get it immediately. If
// any remain, it returns a guesser to feed cases through AddCase or Run;
// if none remain it returns nil.
func NewMeasureGuesser(d *dictionary.Dictionary, scaleMin int) *MeasureGuesser {
	var vars []*mgVar
	for _, v := range d.Vars() {
		if v.Measure() != dictionary.MeasureUnknown {
			continue
		}
		if m := v.Format().DefaultMeasure(); m != dictionary.MeasureUnknown {
			v.SetMeasure(m)
			continue
		}
		vars = append(vars, &mgVar{v: v, seen: map[uint64]struct{}{}})
	}
	if len(vars) == 0 {
		return nil
	}
	return &MeasureGuesser{vars: vars, scaleMin: scaleMin}
}

// AddCase folds one case's values into the guesser. Variables resolved by
// it drop out of further scanning.
func (mg *MeasureGuesser) AddCase(c *cases.Case) {
	for i := 0; i < len(mg.vars); {
		v := mg.vars[i]
		m := v.addValue(c.Num(v.v.DictIndex()), mg.scaleMin)
		if m != dictionary.MeasureUnknown {
			v.v.SetMeasure(m)
			mg.vars[i] = mg.vars[len(mg.vars)-1]
			mg.vars = mg.vars[:len(mg.vars)-1]
		} else {
			i++
		}
	}
}

// Commit closes the sampling window: every still-unresolved variable gets
// its level from the evidence gathered so far.
func (mg *MeasureGuesser) Commit() {
	for _, v := range mg.vars {
		v.v.SetMeasure(v.interpret())
	}
	mg.vars = nil
}

// Run drives a clone of r to completion (or until every variable is
// resolved) and commits the result. The pull-style counterpart of using the
// guesser as a transformation.
func (mg *MeasureGuesser) Run(r stream.Reader) {
	clone := r.Clone()
	for len(mg.vars) > 0 {
		c := clone.Read()
		if c == nil {
			break
		}
		mg.AddCase(c)
		c.Unref()
	}
	clone.Close()
	mg.Commit()
}

// measureTrns adapts a guesser into a chain step whose teardown closes the
// sampling window.
type measureTrns struct {
	mg *MeasureGuesser
}

func (t *measureTrns) Name() string { return "add measurement level" }

func (t *measureTrns) Execute(c **cases.Case, _ int64) trns.Result {
	t.mg.AddCase(*c)
	return trns.Continue
}

func (t *measureTrns) Destroy() bool {
	t.mg.Commit()
	return true
}

// addMeasureLevelTrns appends a guesser over d's unresolved variables to the
// active chain, if there are any.
func (ds *Dataset) addMeasureLevelTrns(d *dictionary.Dictionary) {
	if mg := NewMeasureGuesser(d, ds.settings.ScaleMin); mg != nil {
		ds.AddTransformation(&measureTrns{mg: mg})
	}
}

// cancelMeasureLevelTrns removes a guesser step from the end of the
// permanent chain, committing what it has seen so far.
func (ds *Dataset) cancelMeasureLevelTrns() {
	t, ok := ds.permanent.Last().(*measureTrns)
	if !ok {
		return
	}
	ds.permanent.RemoveLast()
	t.mg.Commit()
}
