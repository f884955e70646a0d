// Package config defines the canonical, JSON-serializable configuration for
// the case pipeline. It is intentionally small, explicit, and dependency-
// free so that pipelines can be loaded from disk and passed through the
// program without additional glue code.
//
// Two models live here:
//
//   - Settings: session-level knobs consulted by the pipeline internals
//     (sampling threshold for the measurement guesser, workspace budget for
//     the auto-paging sink). They are resolved once per procedure
//     invocation and threaded in explicitly; nothing reads them from a
//     global mid-algorithm.
//   - Pipeline: the description of one end-to-end run for the CLI:
//     dictionary, source, filtering, and output.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Settings holds session-level limits.
type Settings struct {
	// ScaleMin is the number of distinct non-negative integer values a
	// variable must produce before the measurement guesser classifies it
	// as scale (continuous).
	ScaleMin int `json:"scale_min"`

	// WorkspaceBytes is the in-memory budget for procedure output before
	// the auto-paging sink spills to disk.
	WorkspaceBytes int64 `json:"workspace_bytes"`

	// TempDir is where spill files are created. Empty means the system
	// temp directory.
	TempDir string `json:"temp_dir"`
}

// DefaultSettings returns the defaults used when no file or environment
// override is present.
func DefaultSettings() Settings {
	return Settings{
		ScaleMin:       24,
		WorkspaceBytes: 64 << 20,
	}
}

// ApplyEnv overlays CASEFLOW_SCALE_MIN, CASEFLOW_WORKSPACE_BYTES, and
// CASEFLOW_TEMP_DIR onto s. Malformed numbers are reported, not ignored.
func (s *Settings) ApplyEnv() error {
	if v := os.Getenv("CASEFLOW_SCALE_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CASEFLOW_SCALE_MIN: %w", err)
		}
		s.ScaleMin = n
	}
	if v := os.Getenv("CASEFLOW_WORKSPACE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: CASEFLOW_WORKSPACE_BYTES: %w", err)
		}
		s.WorkspaceBytes = n
	}
	if v := os.Getenv("CASEFLOW_TEMP_DIR"); v != "" {
		s.TempDir = v
	}
	return nil
}

// Pipeline describes one CLI run, decoded from a JSON pipeline file.
type Pipeline struct {
	// Dictionary lists the variables, in order.
	Dictionary []VariableSpec `json:"dictionary"`

	// Source describes where cases come from.
	Source Source `json:"source"`

	// Filter names a numeric variable used to drop cases with zero or
	// missing values, applied as a temporary transformation. Empty means
	// no filtering.
	Filter string `json:"filter"`

	// CaseLimit caps the number of cases processed; 0 means no limit.
	CaseLimit int64 `json:"case_limit"`

	// Lag is the lookback window depth requested for the run.
	Lag int `json:"lag"`

	// Output describes where the resulting cases go.
	Output Output `json:"output"`

	// Settings overrides; zero fields fall back to defaults.
	Settings Settings `json:"settings"`
}

// VariableSpec declares one dictionary variable.
type VariableSpec struct {
	Name string `json:"name"`

	// Width is 0 for numeric variables, else the string byte width.
	Width int `json:"width"`

	// Leave marks the variable as carried over between cases.
	Leave bool `json:"leave"`

	// Format is one of "", "plain", "string", "currency", "datetime".
	Format string `json:"format"`
}

// Source identifies the data source. Kind selects the implementation.
type Source struct {
	// Kind is "csv", "postgres", or "mssql".
	Kind string `json:"kind"`

	// Path is the input file for the "csv" kind.
	Path string `json:"path"`

	// DSN is the connection string for the database kinds.
	DSN string `json:"dsn"`

	// Query is the row-producing statement for the database kinds. Its
	// columns must align positionally with the dictionary.
	Query string `json:"query"`
}

// Output describes the destination of procedure output.
type Output struct {
	// Discard drops the output instead of writing it anywhere.
	Discard bool `json:"discard"`

	// Path is a CSV file to write; empty (and not Discard) keeps the
	// output in memory only.
	Path string `json:"path"`
}

// LoadPipeline reads and decodes a pipeline file.
func LoadPipeline(path string) (*Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read pipeline: %w", err)
	}
	var p Pipeline
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("config: decode pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the pipeline for the mistakes a file author is likely to
// make; deeper contract violations surface when the pipeline is built.
func (p *Pipeline) Validate() error {
	if len(p.Dictionary) == 0 {
		return fmt.Errorf("config: pipeline has no dictionary variables")
	}
	seen := map[string]bool{}
	for _, v := range p.Dictionary {
		if v.Name == "" {
			return fmt.Errorf("config: variable with empty name")
		}
		if v.Width < 0 {
			return fmt.Errorf("config: variable %q has negative width", v.Name)
		}
		if seen[v.Name] {
			return fmt.Errorf("config: duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
	}
	switch p.Source.Kind {
	case "csv":
		if p.Source.Path == "" {
			return fmt.Errorf("config: csv source needs a path")
		}
	case "postgres", "mssql":
		if p.Source.DSN == "" || p.Source.Query == "" {
			return fmt.Errorf("config: %s source needs dsn and query", p.Source.Kind)
		}
	default:
		return fmt.Errorf("config: unknown source kind %q", p.Source.Kind)
	}
	if p.Filter != "" && !seen[p.Filter] {
		return fmt.Errorf("config: filter variable %q not in dictionary", p.Filter)
	}
	if p.CaseLimit < 0 {
		return fmt.Errorf("config: negative case limit")
	}
	if p.Lag < 0 {
		return fmt.Errorf("config: negative lag")
	}
	return nil
}
