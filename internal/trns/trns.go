// Package trns implements transformation steps and chains: ordered per-case
// processing with a multi-way outcome, the unit of work the dataset
// orchestrator strings together into its permanent and temporary chains.
package trns

import "caseflow/pkg/cases"

// Result is the outcome of executing one transformation against one case.
type Result int

const (
	// Continue passes the case to the next transformation.
	Continue Result = iota
	// DropCase discards the current case; the driver moves to the next.
	DropCase
	// Break ends the current loop iteration early. It is only meaningful
	// inside looping constructs; reaching a chain boundary with Break is
	// an error in the construct that emitted it.
	Break
	// Error aborts the whole procedure. The failure is sticky.
	Error
	// EndCase emits the case under construction (input programs only).
	EndCase
	// EndFile signals end of input (input programs only).
	EndFile
)

// Transformation is one step of case processing. Execute may replace *c with
// a different case (taking over the reference), which is how steps that must
// mutate shared cases unshare them.
type Transformation interface {
	// Name identifies the transformation in diagnostics.
	Name() string

	// Execute processes one case. caseNum is the 1-based number of the
	// case within the current procedure.
	Execute(c **cases.Case, caseNum int64) Result
}

// Destroyer is implemented by transformations with teardown. Destroy runs
// exactly once when the owning chain is cleared and returns false on
// failure; failures are aggregated by Chain.Clear.
type Destroyer interface {
	Destroy() bool
}

// Func adapts a bare function into a Transformation.
type Func struct {
	Label string
	Fn    func(c **cases.Case, caseNum int64) Result
}

func (f Func) Name() string { return f.Label }

func (f Func) Execute(c **cases.Case, caseNum int64) Result {
	return f.Fn(c, caseNum)
}

// Chain is an ordered list of transformations. The zero value is an empty,
// usable chain.
type Chain struct {
	steps []Transformation
}

// Len returns the number of steps.
func (ch *Chain) Len() int { return len(ch.steps) }

// Append adds t at the end of the chain.
func (ch *Chain) Append(t Transformation) {
	ch.steps = append(ch.steps, t)
}

// Prepend adds t at the front of the chain.
func (ch *Chain) Prepend(t Transformation) {
	ch.steps = append([]Transformation{t}, ch.steps...)
}

// Splice moves every step of other to the end of ch, leaving other empty.
func (ch *Chain) Splice(other *Chain) {
	ch.steps = append(ch.steps, other.steps...)
	other.steps = nil
}

// Last returns the final step, or nil for an empty chain.
func (ch *Chain) Last() Transformation {
	if len(ch.steps) == 0 {
		return nil
	}
	return ch.steps[len(ch.steps)-1]
}

// RemoveLast removes and returns the final step without running its
// teardown. The chain must not be empty.
func (ch *Chain) RemoveLast() Transformation {
	t := ch.steps[len(ch.steps)-1]
	ch.steps = ch.steps[:len(ch.steps)-1]
	return t
}

// Execute runs the chain's steps strictly in order against *c, stopping at
// the first outcome other than Continue and returning it.
func (ch *Chain) Execute(c **cases.Case, caseNum int64) Result {
	for _, t := range ch.steps {
		if r := t.Execute(c, caseNum); r != Continue {
			return r
		}
	}
	return Continue
}

// Clear runs each step's teardown (when present) and empties the chain.
// It returns false if any teardown failed.
func (ch *Chain) Clear() bool {
	ok := true
	for _, t := range ch.steps {
		if d, has := t.(Destroyer); has {
			ok = d.Destroy() && ok
		}
	}
	ch.steps = nil
	return ok
}
