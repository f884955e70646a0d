package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writePipeline(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	return path
}

/*
TestLoadPipeline verifies that a well-formed pipeline file decodes with its
fields populated.
*/
func TestLoadPipeline(t *testing.T) {
	path := writePipeline(t, `{
		"dictionary": [
			{"name": "id", "width": 0},
			{"name": "name", "width": 12, "format": "string"},
			{"name": "total", "width": 0, "leave": true}
		],
		"source": {"kind": "csv", "path": "cases.csv"},
		"filter": "id",
		"case_limit": 100,
		"lag": 2,
		"output": {"path": "out.csv"}
	}`)

	p, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	if len(p.Dictionary) != 3 {
		t.Fatalf("dictionary vars=%d; want 3", len(p.Dictionary))
	}
	if !p.Dictionary[2].Leave {
		t.Fatal("leave flag lost in decode")
	}
	if p.CaseLimit != 100 || p.Lag != 2 || p.Filter != "id" {
		t.Fatalf("limits decoded wrong: limit=%d lag=%d filter=%q",
			p.CaseLimit, p.Lag, p.Filter)
	}
}

/*
TestValidateRejections walks the author-mistake cases: missing dictionary,
duplicate names, unknown source kind, database source without dsn, filter
not in the dictionary.
*/
func TestValidateRejections(t *testing.T) {
	base := func() *Pipeline {
		return &Pipeline{
			Dictionary: []VariableSpec{{Name: "a"}},
			Source:     Source{Kind: "csv", Path: "x.csv"},
		}
	}

	tests := []struct {
		name  string
		mutate func(*Pipeline)
	}{
		{"no dictionary", func(p *Pipeline) { p.Dictionary = nil }},
		{"duplicate variable", func(p *Pipeline) {
			p.Dictionary = append(p.Dictionary, VariableSpec{Name: "a"})
		}},
		{"unknown source", func(p *Pipeline) { p.Source.Kind = "ftp" }},
		{"postgres without dsn", func(p *Pipeline) {
			p.Source = Source{Kind: "postgres", Query: "select 1"}
		}},
		{"filter not in dictionary", func(p *Pipeline) { p.Filter = "nope" }},
		{"negative case limit", func(p *Pipeline) { p.CaseLimit = -1 }},
	}
	for _, tt := range tests {
		p := base()
		tt.mutate(p)
		if err := p.Validate(); err == nil {
			t.Fatalf("%s: Validate accepted broken pipeline", tt.name)
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid pipeline rejected: %v", err)
	}
}

/*
TestApplyEnv verifies the environment overlays, including rejection of
malformed numbers.
*/
func TestApplyEnv(t *testing.T) {
	t.Setenv("CASEFLOW_SCALE_MIN", "7")
	t.Setenv("CASEFLOW_WORKSPACE_BYTES", "1024")
	t.Setenv("CASEFLOW_TEMP_DIR", "/tmp/caseflow")

	s := DefaultSettings()
	if err := s.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if s.ScaleMin != 7 || s.WorkspaceBytes != 1024 || s.TempDir != "/tmp/caseflow" {
		t.Fatalf("overlay wrong: %+v", s)
	}

	t.Setenv("CASEFLOW_SCALE_MIN", "many")
	if err := s.ApplyEnv(); err == nil {
		t.Fatal("malformed CASEFLOW_SCALE_MIN accepted")
	}
}
